//go:build tools

package enums

import _ "github.com/dmarkham/enumer"
