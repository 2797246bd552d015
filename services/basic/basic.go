package main

import (
	"context"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/docuform-tech/docuform/core/access"
	"github.com/docuform-tech/docuform/core/assets"
	"github.com/docuform-tech/docuform/core/attachment"
	"github.com/docuform-tech/docuform/core/backend"
	"github.com/docuform-tech/docuform/core/docdb"
	"github.com/docuform-tech/docuform/core/logger"
)

var configurationJSON string = `
{
	"entities": [
	  {
		"singular": "user",
		"collection": "user",
		"unique_index": ["email"],
		"admin_only": ["create", "update", "delete"]
	  },
	  {
		"singular": "document",
		"collection": "document",
		"owner_field": "created_by_id",
		"updated_by_field": "updated_by_id",
		"audit_timestamps": true,
		"attachment": true,
		"dependencies": [
		  {
			"repository": "self",
			"fields": {"created_by_id": "current_identity"},
			"skip_on_create": true
		  }
		],
		"relations": {
		  "created_by": {"from": "user", "local_field": "created_by_id", "foreign_field": "_id"}
		}
	  }
	]
}
`

// Service holds the configuration for this service
//
// leave MONGODB empty to run on the in-process memory store
type Service struct {
	MongoDB      string `env:"MONGODB" description:"the connection string for MongoDB"`
	Database     string `env:"DATABASE,default=docuform" description:"the database name"`
	JwtSecret    string `env:"JWT_SECRET" description:"the HS256 secret for bearer tokens"`
	AssetDriver  string `env:"ASSET_DRIVER,default=Local" description:"the asset driver, Local or AWSS3"`
	AssetPath    string `env:"ASSET_PATH,default=/tmp/docuform-assets" description:"where the local driver stores uploaded files"`
	S3Region     string `env:"S3_REGION,default=eu-central-1" description:"the AWS region of the asset bucket"`
	S3BucketName string `env:"S3_BUCKET_NAME" description:"the S3 bucket for uploaded files"`
	S3KeyPrefix  string `env:"S3_KEY_PREFIX" description:"a key prefix inside the asset bucket"`
	S3AccessID   string `env:"S3_ACCESS_ID" description:"the AWS access key id for the asset bucket"`
	S3AccessKey  string `env:"S3_ACCESS_KEY" description:"the AWS access key for the asset bucket"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	logger.InitLogger(logrus.InfoLevel)
	rlog := logger.Default()

	var store docdb.Store
	if service.MongoDB != "" {
		mongo, err := docdb.OpenMongo(context.Background(), service.MongoDB, service.Database)
		if err != nil {
			panic(err)
		}
		defer mongo.Close(context.Background())
		store = mongo
	} else {
		rlog.Warningln("MONGODB is not set, records are kept in memory only")
		store = docdb.NewMemory()
	}

	driver, err := assets.New(assets.Configuration{
		DriverType:         assets.DriverType(service.AssetDriver),
		LocalConfiguration: &assets.LocalConfiguration{BasePath: service.AssetPath},
		S3Configuration: &assets.S3Configuration{
			AWSRegion:     service.S3Region,
			AWSBucketName: service.S3BucketName,
			KeyPrefix:     service.S3KeyPrefix,
			AccessID:      service.S3AccessID,
			AccessKey:     service.S3AccessKey,
		},
	})
	if err != nil {
		panic(err)
	}

	router := mux.NewRouter()
	logger.AddRequestID(router)
	if service.JwtSecret != "" {
		router.Use(access.NewJwtMiddleware(&access.JwtMiddlewareBuilder{
			Secret: service.JwtSecret,
			Store:  store,
		}))
	}

	backend.New(&backend.Builder{
		Config:    configurationJSON,
		Store:     store,
		Router:    router,
		Processor: attachment.NewBasic(driver),
	})

	rlog.Infoln("listen on port :3000")
	http.ListenAndServe(":3000", handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(router))
}
