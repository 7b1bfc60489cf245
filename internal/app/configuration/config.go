package configuration

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"

	"github.com/pactum-oss/pactum/pkg/mockprovider"
	"github.com/pactum-oss/pactum/pkg/verifier"
)

// LoadDotEnv merges an optional .env file into the process environment
// before config processing. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "load .env")
	}
	return nil
}

func NewMockProviderConfigFromEnv() (mockprovider.Config, error) {
	ctx := context.Background()

	var config mockprovider.Config
	err := envconfig.Process(ctx, &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}

func NewVerifierConfigFromEnv() (verifier.Config, error) {
	ctx := context.Background()

	var config verifier.Config
	err := envconfig.Process(ctx, &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}
