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
	"html/template"
	"net/http"
	"strings"

	"github.com/ctessum/gobra"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
	"github.com/spatialmodel/ncsynth"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to ncsynth.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile specifies the path to the NetCDF file to be created.
              It can also be a blob storage location starting with file://,
              gs:// or s3://, in which case the file is written locally
              and uploaded when it is complete.`,
			shorthand:  "o",
			defaultVal: "ncsynth.nc",
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "StartDate",
			usage: `
              StartDate is the first hour to generate, in RFC 3339 format
              (for example 2019-01-01T00:00:00+10:00). If it is empty, the
              start date of the scenario is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "EndDate",
			usage: `
              EndDate is the end of the generated period (exclusive), in
              RFC 3339 format. If it is empty, the end date of the scenario
              is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Seed",
			usage: `
              Seed seeds the random numbers used by the random() function and
              by noisy gradients. Runs with the same seed create the same file.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Attributes",
			usage: `
              Attributes are additional global attributes of the output file,
              as a map of names to values.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages that are printed:
              one of debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("NCSYNTH")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				json.NewEncoder(b).Encode(v)
				set.StringP(option.name, option.shorthand, strings.TrimSpace(b.String()), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(sampleCmd)
	Root.AddCommand(scenarioCmd)
	Root.AddCommand(guiCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets the log level.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("ncsynthutil: problem reading configuration file: %v", err)
		}
	}
	return setLogLevel(Cfg.GetString("LogLevel"))
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "ncsynth",
	Short: "A generator of synthetic NetCDF files.",
	Long: `ncsynth creates NetCDF files filled with synthetic data, for testing
software that reads and displays gridded model output. Each file holds one
or more hypercubes of variables on latitude, longitude and optionally depth
and time axes.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'NCSYNTH_var' where 'var' is
the name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of ncsynth.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ncsynth v%s\n", ncsynth.Version)
	},
	DisableAutoGenTag: true,
}

var sampleCmd = &cobra.Command{
	Use:   "sample name",
	Short: "Create one of the built-in sample files.",
	Long: `sample creates one of the built-in sample files:

  test   two gradients on a fine global grid, changing every hour.
  gbr    a coarse grid over the Great Barrier Reef with depth, current and
         wind vectors, missing hours and holes in the salinity.
  multi  two hypercubes with different grids and time steps.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: SampleNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := Sample(args[0])
		if err != nil {
			return err
		}
		return runScenario(s)
	},
	DisableAutoGenTag: true,
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario file.toml",
	Short: "Create a file described by a scenario file.",
	Long: `scenario creates a file from a TOML scenario file. A scenario has a
StartDate and an EndDate and a list of [[Grid]] tables. Each grid has Lat and
Lon ranges ({Min, Max, Steps}), optional Depths, HourOffset, HourStep and
SkipHours, and [[Grid.Variable]] and [[Grid.Vector]] tables.

Variable values are expressions of hour, lat, lon and depth. The functions
abs, sin, cos, sqrt, random(), linear(lat, lon, min, max, wavelength,
angle, noise) and radial(lat, lon, min, max, diameter, noise) are available.
A Where expression leaves the points where it is false empty.
Run 'ncsynth sample' for examples.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := LoadScenario(args[0])
		if err != nil {
			return err
		}
		return runScenario(s)
	},
	DisableAutoGenTag: true,
}

var guiCmd = &cobra.Command{
	Use:   "gui",
	Short: "Configure and run ncsynth in a web browser.",
	Long: `gui starts a web server with a form for each command and opens it
in the default web browser.`,
	Run: func(cmd *cobra.Command, args []string) {
		StartWebServer()
	},
	DisableAutoGenTag: true,
}

// runScenario generates s using the configuration in Cfg.
func runScenario(s *Scenario) error {
	outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
	if err != nil {
		return err
	}
	start, end, err := period(Cfg, s)
	if err != nil {
		return err
	}
	attrs, err := GetStringMapString("Attributes", Cfg)
	if err != nil {
		return err
	}
	return Run(context.Background(), logrus.StandardLogger(), s, outputFile,
		start, end, int64(Cfg.GetInt("Seed")), attrs)
}

const serverAddress = "localhost:7171"

// StartWebServer starts the web server.
func StartWebServer() {
	setConfig() // Errors are shown again when a command runs.

	http.HandleFunc("/setConfig", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		Root.PersistentFlags().Set("config", r.Form.Get("config"))
		if err := setConfig(); err != nil {
			http.Error(w, err.Error(), http.StatusNoContent)
			return
		}
		config := make(map[string]interface{})
		for _, option := range options {
			config[option.name] = Cfg.Get(option.name)
		}
		if err := json.NewEncoder(w).Encode(config); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	// Errors are reported in the page rather than as usage text.
	for _, cmd := range Root.Commands() {
		cmd.SilenceUsage = true
	}

	const tmpl = `
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>ncsynth</title>
	<link rel="stylesheet" href="https://maxcdn.bootstrapcdn.com/bootstrap/3.3.7/css/bootstrap.min.css">
</head>
<body>
<div class="container">
	<h1>ncsynth</h1>
	<p>Choose a command and fill in its configuration below.</p>
	<div>
		{{.}}
	</div>
</div>
<script>
let configInput = [...document.querySelectorAll('[data-name]')]
	.filter(x => x.dataset.name == "config")[0].children[0];
configInput.addEventListener("input", e => {
	fetch("http://` + serverAddress + `/setConfig?config=" + configInput.value)
		.then(res => res.status == 200 ? res.json() : {})
		.then(data => {
			for (let f of document.querySelectorAll('[data-name]'))
				if (f.dataset.name in data)
					f.children[0].value = JSON.stringify(data[f.dataset.name]).replace(/^"+|"+$/g, '');
		});
});
</script>
</body>
</html>`

	output := template.Must(template.New("").Parse(tmpl))
	server := gobra.Server{Root: Root, ServerAddress: serverAddress, AllowCORS: false, HTML: output}
	logrus.Info("ncsynthutil: server starting")
	open.Run("http://" + serverAddress)
	fmt.Println("If not opened automatically, please visit http://" + serverAddress)
	server.Start()
}
