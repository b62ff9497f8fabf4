package config

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/rgbd/logging"
)

// Read reads a pipeline config from the given file. ${VAR} references are replaced with
// environment variables before parsing.
func Read(
	ctx context.Context,
	filePath string,
	logger logging.Logger,
) (*Pipeline, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(ctx, filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(
	ctx context.Context,
	originalPath string,
	r io.Reader,
	logger logging.Logger,
) (*Pipeline, error) {
	var attrs map[string]interface{}
	if err := json.NewDecoder(r).Decode(&attrs); err != nil {
		return nil, errors.Wrap(err, "failed to decode config from json")
	}
	conf, err := FromAttributes(attrs)
	if err != nil {
		return nil, err
	}
	conf.ConfigFilePath = originalPath
	if err := conf.Validate(""); err != nil {
		return nil, err
	}
	logger.Debugw("read pipeline config", "path", originalPath, "workers", conf.Workers, "device", conf.DeviceURI)
	return conf, nil
}

// FromAttributes decodes a generic attribute map into a Pipeline without validating it.
// Durations may be given as strings such as "50ms".
func FromAttributes(attrs map[string]interface{}) (*Pipeline, error) {
	var conf Pipeline
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &conf,
		ErrorUnused:      true,
		WeaklyTypedInput: false,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating decoder")
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, errors.Wrap(err, "cannot decode pipeline config")
	}
	return &conf, nil
}
