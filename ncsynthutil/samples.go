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
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
)

//go:embed samples/*.toml
var sampleFiles embed.FS

// SampleNames returns the names of the built-in scenarios.
func SampleNames() []string {
	entries, err := sampleFiles.ReadDir("samples")
	if err != nil {
		panic(err)
	}
	var o []string
	for _, e := range entries {
		o = append(o, strings.TrimSuffix(e.Name(), ".toml"))
	}
	sort.Strings(o)
	return o
}

// Sample returns the built-in scenario with the given name.
func Sample(name string) (*Scenario, error) {
	f, err := sampleFiles.Open(path.Join("samples", name+".toml"))
	if err != nil {
		return nil, fmt.Errorf("ncsynthutil: no sample named '%s'; available samples are %v", name, SampleNames())
	}
	defer f.Close()
	return ReadScenario(f)
}
