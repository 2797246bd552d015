/*Package assets stores binary assets outside of the document store. There
are two drivers: the local filesystem and AWS S3.
*/
package assets

import (
	"context"
	"fmt"
)

// Driver is the interface of an asset store.
type Driver interface {
	// Put stores data under key, overwriting any previous asset.
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes the asset stored under key.
	Delete(ctx context.Context, key string) error
}

// DriverType represents the different types of asset drivers
type DriverType string

// DriverTypeLocal is the local filesystem driver
const DriverTypeLocal DriverType = "Local"

// DriverTypeAWSS3 is the AWS S3 driver
const DriverTypeAWSS3 DriverType = "AWSS3"

// None is used when assets are not stored at all
const None DriverType = ""

// Configuration selects and configures an asset driver
type Configuration struct {
	DriverType         DriverType
	LocalConfiguration *LocalConfiguration
	S3Configuration    *S3Configuration
}

// LocalConfiguration configures the local filesystem driver
type LocalConfiguration struct {
	BasePath string
}

// S3Configuration configures the AWS S3 driver
type S3Configuration struct {
	AWSRegion     string
	AWSBucketName string
	AccessID      string
	AccessKey     string
	KeyPrefix     string
}

// New creates the driver selected by the configuration.
func New(config Configuration) (Driver, error) {
	if config.DriverType == DriverTypeLocal {
		if config.LocalConfiguration == nil {
			return nil, fmt.Errorf("assets expecting a configuration for the local driver, but got nothing")
		}
		driver, err := NewFilesystem(*config.LocalConfiguration)
		if err != nil {
			return nil, err
		}
		return driver, nil
	} else if config.DriverType == DriverTypeAWSS3 {
		if config.S3Configuration == nil {
			return nil, fmt.Errorf("assets expecting a configuration for the S3 driver, but got nothing")
		}
		driver, err := NewS3(*config.S3Configuration)
		if err != nil {
			return nil, err
		}
		return driver, nil
	}
	return nil, fmt.Errorf("assets used but unknown driver type: %s", config.DriverType)
}
