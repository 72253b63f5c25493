// Package service: decoding of the untyped new_service conf map (the shape
// a scripting layer or CLI would hand in) into the validated Config struct.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package service

import (
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

var validate = validator.New()

// DecodeConfig decodes raw into a Config via mapstructure (unmatched keys
// land in Extra) and validates it. Any decode or validation failure is
// wrapped with the original cause so the caller can log it; the runtime
// contract for the failure itself (reply with INTEGER id 0) is enforced by
// the caller, not here.
func DecodeConfig(raw map[string]any) (*Config, error) {
	var conf Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &conf,
		WeaklyTypedInput: true,
		Metadata:         nil,
	})
	if err != nil {
		return nil, errors.Wrap(err, "service: build config decoder")
	}
	if err := dec.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "service: decode config")
	}

	conf.Extra = make(map[string]any)
	known := map[string]struct{}{
		"type": {}, "name": {}, "file": {}, "memlimit": {}, "unique": {},
		"threadid": {}, "args": {},
	}
	for k, v := range raw {
		if _, ok := known[k]; !ok {
			conf.Extra[k] = v
		}
	}

	if err := validate.Struct(&conf); err != nil {
		return nil, errors.Wrap(err, "service: validate config")
	}
	return &conf, nil
}
