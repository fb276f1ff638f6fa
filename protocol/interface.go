package protocol

import (
	"github.com/datamorph-io/forcetap/drivers/abstract"
)

type Driver = abstract.DriverInterface
