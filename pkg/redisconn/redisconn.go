package redisconn

import (
	"context"
	"fmt"
	"strings"

	"github.com/paysync/paysync/pkg/config"
	"github.com/redis/rueidis"
)

// New returns a rueidis client for the configured deployment and checks that
// it can reach the server.  Client side caching is disabled: every read must
// observe the latest conditional write.
func New(ctx context.Context, c config.Redis, name string) (rueidis.Client, error) {
	rc, err := rueidis.NewClient(Option(c, name))
	if err != nil {
		return nil, fmt.Errorf("error creating redis client: %w", err)
	}
	if err := rc.Do(ctx, rc.B().Ping().Build()).Error(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("error pinging redis: %w", err)
	}
	if c.Cluster {
		if err := checkCluster(ctx, rc); err != nil {
			rc.Close()
			return nil, err
		}
	}
	return rc, nil
}

// Option builds the client options.  Outside of cluster mode the client is
// forced to a single node, so scripts touching a partition and its lookups
// are not rejected for spanning hash slots.
func Option(c config.Redis, name string) rueidis.ClientOption {
	return rueidis.ClientOption{
		InitAddress:       c.Addrs,
		Username:          c.Username,
		Password:          c.Password,
		SelectDB:          c.DB,
		ClientName:        name,
		DisableCache:      true,
		ForceSingleClient: !c.Cluster,
	}
}

func checkCluster(ctx context.Context, rc rueidis.Client) error {
	info, err := rc.Do(ctx, rc.B().ClusterInfo().Build()).ToString()
	if err != nil {
		return fmt.Errorf("redis.cluster is set but the server is not a cluster: %w", err)
	}
	if !strings.Contains(info, "cluster_state:ok") {
		return fmt.Errorf("redis.cluster is set but the cluster is not healthy")
	}
	return nil
}
