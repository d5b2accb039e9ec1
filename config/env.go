package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"

	"github.com/joho/godotenv"
)

type Datapool struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// ConnString returns a postgres:// URI for pgx.
func (d Datapool) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type Decentlab struct {
	Domain string
	APIKey string
}

func (d Decentlab) Enabled() bool {
	return d.Domain != "" && d.APIKey != ""
}

type Influx struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func (i Influx) Enabled() bool {
	return i.URL != "" && i.Token != ""
}

type ClickHouse struct {
	Addr     string
	Database string
	User     string
	Password string
}

func (c ClickHouse) Enabled() bool {
	return c.Addr != ""
}

type S3 struct {
	Bucket          string
	Region          string
	EndpointURL     string
	KeyPrefix       string
	AccessKeyID     string
	SecretAccessKey string
}

func (s S3) Enabled() bool {
	return s.Bucket != ""
}

type Env struct {
	Datapool        Datapool
	Decentlab       Decentlab
	Influx          Influx
	ClickHouse      ClickHouse
	S3              S3
	SlackWebhookURL string
}

// Load reads the given dotenv file, if present, into the process environment and
// returns the resulting configuration. Variables already set in the environment win.
func Load(path string) (*Env, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return FromEnv(), nil
}

func FromEnv() *Env {
	return &Env{
		Datapool: Datapool{
			Host:     getenv(EnvDatapoolHost, DefaultDatapoolHost),
			Port:     getenv(EnvDatapoolPort, DefaultDatapoolPort),
			Database: getenv(EnvDatapoolDatabase, DefaultDatapoolDatabase),
			User:     getenv(EnvDatapoolUser, DefaultDatapoolUser),
			Password: os.Getenv(EnvDatapoolPassword),
		},
		Decentlab: Decentlab{
			Domain: os.Getenv(EnvDecentlabDomain),
			APIKey: os.Getenv(EnvDecentlabAPIKey),
		},
		Influx: Influx{
			URL:    os.Getenv(EnvInfluxURL),
			Token:  os.Getenv(EnvInfluxToken),
			Org:    getenv(EnvInfluxOrg, DefaultInfluxOrg),
			Bucket: getenv(EnvInfluxBucket, DefaultInfluxBucket),
		},
		ClickHouse: ClickHouse{
			Addr:     os.Getenv(EnvClickHouseAddr),
			Database: getenv(EnvClickHouseDatabase, DefaultClickHouseDatabase),
			User:     getenv(EnvClickHouseUser, DefaultClickHouseUser),
			Password: os.Getenv(EnvClickHousePassword),
		},
		S3: S3{
			Bucket:          os.Getenv(EnvS3Bucket),
			Region:          getenv(EnvS3Region, DefaultS3Region),
			EndpointURL:     os.Getenv(EnvS3EndpointURL),
			KeyPrefix:       os.Getenv(EnvS3KeyPrefix),
			AccessKeyID:     os.Getenv(EnvAWSAccessKeyID),
			SecretAccessKey: os.Getenv(EnvAWSSecretAccessKey),
		},
		SlackWebhookURL: os.Getenv(EnvSlackWebhookURL),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
