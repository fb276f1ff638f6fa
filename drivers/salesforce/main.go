package main

import (
	"github.com/datamorph-io/forcetap"
	driver "github.com/datamorph-io/forcetap/drivers/salesforce/internal"
)

func main() {
	driver := &driver.Salesforce{}
	forcetap.RegisterDriver(driver)
}
