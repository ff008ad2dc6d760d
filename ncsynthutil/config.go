/*
Copyright © 2019 the ncsynth authors.
This file is part of ncsynth.

ncsynth is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ncsynth is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ncsynth.  If not, see <http://www.gnu.org/licenses/>.
*/

package ncsynthutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// checkOutputFile makes sure that the output file is specified and its
// directory or bucket exists, and expands any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`ncsynthutil: you need to specify an output file configuration variable (for example: OutputFile="output.nc")`)
	}
	f = os.ExpandEnv(f)
	if IsBlob(f) {
		u, err := url.Parse(f)
		if err != nil {
			return f, err
		}
		if _, err = OpenBucket(context.TODO(), u.Scheme+"://"+u.Host); err != nil {
			return f, fmt.Errorf("ncsynthutil: error when checking OutputFile location: %v", err)
		}
		return f, nil
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("ncsynthutil: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if v == "" {
			return o, nil
		}
		if err := json.NewDecoder(bytes.NewBufferString(v)).Decode(&o); err != nil {
			return nil, fmt.Errorf("ncsynthutil: parsing %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("ncsynthutil: invalid type for %s: %#v", varName, i)
	}
}

// period returns the hours to generate: the StartDate and EndDate
// configuration variables where they are set, and the scenario's own
// dates otherwise.
func period(cfg *viper.Viper, s *Scenario) (start, end time.Time, err error) {
	start, end, err = s.Period()
	if err != nil {
		return
	}
	if v := cfg.GetString("StartDate"); v != "" {
		if start, err = cast.ToTimeE(os.ExpandEnv(v)); err != nil {
			return start, end, fmt.Errorf("ncsynthutil: StartDate: %v", err)
		}
	}
	if v := cfg.GetString("EndDate"); v != "" {
		if end, err = cast.ToTimeE(os.ExpandEnv(v)); err != nil {
			return start, end, fmt.Errorf("ncsynthutil: EndDate: %v", err)
		}
	}
	if !end.After(start) {
		return start, end, fmt.Errorf("ncsynthutil: EndDate (%v) must be after StartDate (%v)", end, start)
	}
	return start, end, nil
}

// setLogLevel sets the level of the standard logger.
func setLogLevel(level string) error {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("ncsynthutil: LogLevel: %v", err)
	}
	logrus.SetLevel(l)
	return nil
}
