package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/asaskevich/govalidator"

	"github.com/digitorus/pdfbatchsign/batch"
	"github.com/digitorus/pdfbatchsign/sign"
)

func init() {
	govalidator.SetFieldsRequiredByDefault(true)
}

var DefaultLocation = "./pdfbatchsign.conf" // Default location of the config file

// Config is the root of the config
type Config struct {
	StampText     string `toml:"stamp_text" valid:"optional"`
	Reason        string `toml:"reason" valid:"optional"`
	ChunkSize     int    `toml:"chunk_size" valid:"range(1|10000)"`
	SignatureSize int    `toml:"signature_size" valid:"range(1024|65536)"`
	TSAURL        string `toml:"tsa_url" valid:"url,optional"`
	TSAUsername   string `toml:"tsa_username" valid:"optional"`
	TSAPassword   string `toml:"tsa_password" valid:"optional"`
	OutputRoot    string `toml:"output_root" valid:"optional"`
	StagingDir    string `toml:"staging_dir" valid:"optional"`
	Locale        string `toml:"locale" valid:"in(en|pt-BR)"`
	LogLevel      string `toml:"log_level" valid:"in(debug|info|warn|error)"`
}

// Default returns the settings used when no config file is present.
func Default() Config {
	return Config{
		Reason:        sign.DefaultReason,
		ChunkSize:     batch.DefaultChunkSize,
		SignatureSize: sign.DefaultSignatureSize,
		Locale:        "en",
		LogLevel:      "info",
	}
}

// ValidateFields validates all the fields of the config
func (c Config) ValidateFields() error {
	_, err := govalidator.ValidateStruct(c)
	if err != nil {
		return err
	}
	return nil
}

// SignOptions returns the per document signing settings.
func (c Config) SignOptions() batch.SignOptions {
	return batch.SignOptions{
		Reason:        c.Reason,
		SignatureSize: c.SignatureSize,
		TSA: sign.TSA{
			URL:      c.TSAURL,
			Username: c.TSAUsername,
			Password: c.TSAPassword,
		},
	}
}

// Read decodes configfile over the defaults and validates the result.
func Read(configfile string) (Config, error) {
	if _, err := os.Stat(configfile); err != nil {
		return Config{}, fmt.Errorf("config file is missing: %s", configfile)
	}

	c := Default()
	if _, err := toml.DecodeFile(configfile, &c); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", configfile, err)
	}

	if err := c.ValidateFields(); err != nil {
		return Config{}, fmt.Errorf("config is not valid: %w", err)
	}

	return c, nil
}
