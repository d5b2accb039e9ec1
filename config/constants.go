package config

const (
	// Datapool defaults.
	DefaultDatapoolHost     = "localhost"
	DefaultDatapoolPort     = "5432"
	DefaultDatapoolDatabase = "datapool"
	DefaultDatapoolUser     = "datapool"

	// Environment variable names.
	EnvDatapoolHost       = "DATAPOOL_HOST"
	EnvDatapoolPort       = "DATAPOOL_PORT"
	EnvDatapoolDatabase   = "DATAPOOL_DATABASE"
	EnvDatapoolUser       = "DATAPOOL_USER"
	EnvDatapoolPassword   = "DATAPOOL_PASSWORD"
	EnvDecentlabDomain    = "DECENTLAB_DOMAIN"
	EnvDecentlabAPIKey    = "DECENTLAB_API_KEY"
	EnvInfluxURL          = "INFLUX_URL"
	EnvInfluxToken        = "INFLUX_TOKEN"
	EnvInfluxOrg          = "INFLUX_ORG"
	EnvInfluxBucket       = "INFLUX_BUCKET"
	EnvClickHouseAddr     = "CLICKHOUSE_ADDR"
	EnvClickHouseDatabase = "CLICKHOUSE_DATABASE"
	EnvClickHouseUser     = "CLICKHOUSE_USER"
	EnvClickHousePassword = "CLICKHOUSE_PASSWORD"
	EnvS3Bucket           = "S3_BUCKET"
	EnvS3Region           = "S3_REGION"
	EnvS3EndpointURL      = "S3_ENDPOINT_URL"
	EnvS3KeyPrefix        = "S3_KEY_PREFIX"
	EnvAWSAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvSlackWebhookURL    = "SLACK_WEBHOOK_URL"

	// Influx defaults.
	DefaultInfluxOrg    = "uwo"
	DefaultInfluxBucket = "sensorhealth"

	// ClickHouse defaults.
	DefaultClickHouseDatabase = "default"
	DefaultClickHouseUser     = "default"

	// S3 defaults.
	DefaultS3Region = "eu-central-2"

	// The observatory reports in local Swiss time.
	DefaultLocation = "Europe/Zurich"
)
