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
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncsynth"
	"github.com/spatialmodel/ncsynth/internal/hash"
)

// Run evaluates scenario s for the hours between start and end and
// writes the result to outputFile, which may be a blob storage URL.
// seed seeds the noise in the data and attributes are added to the
// global attributes of the file, along with an ncsynth_fingerprint
// attribute that is the same for files created from the same arguments.
func Run(ctx context.Context, log logrus.FieldLogger, s *Scenario, outputFile string, start, end time.Time, seed int64, attributes map[string]string) error {
	datasets, err := s.Datasets(start, end, seed)
	if err != nil {
		return err
	}
	fingerprint := Fingerprint(s, start, end, seed, attributes)
	for _, d := range datasets {
		setAttributes(d.SetAttribute, attributes)
		d.SetAttribute("ncsynth_fingerprint", fingerprint)
	}

	u := newUploader(log)
	defer u.cleanup()
	path, err := u.localPath(outputFile)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"file":        outputFile,
		"start":       start,
		"end":         end,
		"seed":        seed,
		"fingerprint": fingerprint,
	}).Info("ncsynthutil: generating file")
	g := &ncsynth.Generator{Log: log}
	if err := g.Generate(path, datasets...); err != nil {
		return err
	}
	return u.upload(ctx)
}

// Fingerprint returns a key identifying the file that Run creates from
// the same arguments.
func Fingerprint(s *Scenario, start, end time.Time, seed int64, attributes map[string]string) string {
	return hash.Hash(struct {
		Scenario   *Scenario
		Start, End string
		Seed       int64
		Attributes map[string]string
	}{s, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), seed, attributes})
}
