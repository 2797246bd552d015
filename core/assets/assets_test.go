package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsDriver(t *testing.T) {
	driver, err := New(Configuration{
		DriverType:         DriverTypeLocal,
		LocalConfiguration: &LocalConfiguration{BasePath: t.TempDir()},
	})
	require.NoError(t, err)
	_, ok := driver.(*Filesystem)
	assert.True(t, ok)
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	_, err := New(Configuration{DriverType: DriverTypeLocal})
	assert.Error(t, err, "the local driver needs a local configuration")

	_, err = New(Configuration{DriverType: DriverTypeAWSS3})
	assert.Error(t, err, "the S3 driver needs an S3 configuration")

	_, err = New(Configuration{DriverType: "Tape"})
	assert.Error(t, err)
}
