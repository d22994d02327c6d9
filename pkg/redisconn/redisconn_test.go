package redisconn

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/paysync/paysync/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r := miniredis.RunT(t)
	ctx := context.Background()

	rc, err := New(ctx, config.Redis{Addrs: []string{r.Addr()}}, "test")
	require.NoError(t, err)
	defer rc.Close()

	require.NoError(t, rc.Do(ctx, rc.B().Set().Key("k").Value("v").Build()).Error())
	r.CheckGet(t, "k", "v")
}

func TestNewUnreachable(t *testing.T) {
	r := miniredis.RunT(t)
	addr := r.Addr()
	r.Close()

	_, err := New(context.Background(), config.Redis{Addrs: []string{addr}}, "test")
	require.Error(t, err)
}

func TestOption(t *testing.T) {
	c := config.Redis{Addrs: []string{"localhost:6379"}, DB: 2}

	opt := Option(c, "test")
	require.True(t, opt.ForceSingleClient)
	require.True(t, opt.DisableCache)
	require.Equal(t, 2, opt.SelectDB)
	require.Equal(t, "test", opt.ClientName)

	c.Cluster = true
	require.False(t, Option(c, "test").ForceSingleClient)
}

func TestNewAllowsMultiSlotCommands(t *testing.T) {
	r := miniredis.RunT(t)
	ctx := context.Background()

	rc, err := New(ctx, config.Redis{Addrs: []string{r.Addr()}}, "test")
	require.NoError(t, err)
	defer rc.Close()

	cmd := rc.B().Mset().KeyValue().KeyValue("paysync:kv:{m1_pay_1}", "a").KeyValue("paysync:lookup:m1_att_1", "b").Build()
	require.NoError(t, rc.Do(ctx, cmd).Error())
	r.CheckGet(t, "paysync:lookup:m1_att_1", "b")
}
