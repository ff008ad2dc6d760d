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
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestIsBlob(t *testing.T) {
	for path, want := range map[string]bool{
		"gs://bucket/out.nc": true,
		"s3://bucket/out.nc": true,
		"file://dir/out.nc":  true,
		"out.nc":             false,
		"/tmp/file.nc":       false,
	} {
		if got := IsBlob(path); got != want {
			t.Errorf("IsBlob(%q) = %v", path, got)
		}
	}
	if _, err := OpenBucket(context.Background(), "ftp://bucket"); err == nil {
		t.Error("ftp bucket opened")
	}
}

func TestRunUpload(t *testing.T) {
	os.Mkdir("testbucket", os.ModePerm)
	defer os.RemoveAll("testbucket")

	s, err := ReadScenario(strings.NewReader(smallScenario))
	if err != nil {
		t.Fatal(err)
	}
	start, end, _ := s.Period()
	log, hook := test.NewNullLogger()
	if err := Run(context.Background(), log, s, "file://testbucket/small.nc", start, end, 1,
		map[string]string{"source": "ncsynth test"}); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join("testbucket", "small.nc"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	if src := nc.Header.GetAttribute("", "source"); src != "ncsynth test" {
		t.Errorf("source = %v", src)
	}
	if title := nc.Header.GetAttribute("", "title"); title != "small" {
		t.Errorf("title = %v", title)
	}
	attrs := map[string]string{"source": "ncsynth test"}
	if fp := nc.Header.GetAttribute("", "ncsynth_fingerprint"); fp != Fingerprint(s, start, end, 1, attrs) {
		t.Errorf("fingerprint = %v", fp)
	}
	if Fingerprint(s, start, end, 1, attrs) == Fingerprint(s, start, end, 2, attrs) {
		t.Error("fingerprint does not depend on the seed")
	}

	var uploaded bool
	for _, e := range hook.AllEntries() {
		uploaded = uploaded || e.Message == "ncsynthutil: uploaded output file"
	}
	if !uploaded {
		t.Error("upload not logged")
	}
}

const conflictScenario = `
StartDate = "2019-01-01T00:00:00Z"
EndDate = "2019-01-01T02:00:00Z"

[[Grid]]
Lat = { Min = 0.0, Max = 1.0, Steps = 2 }
Lon = { Min = 0.0, Max = 1.0, Steps = 2 }

  [[Grid.Variable]]
  Name = "dup"
  Value = "lat"

[[Grid]]
Lat = { Min = 5.0, Max = 6.0, Steps = 2 }
Lon = { Min = 5.0, Max = 6.0, Steps = 2 }

  [[Grid.Variable]]
  Name = "dup"
  Value = "lon"
`

func TestRunRemovesTemporaryFiles(t *testing.T) {
	os.Mkdir("testbucket3", os.ModePerm)
	defer os.RemoveAll("testbucket3")
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	log, _ := test.NewNullLogger()

	for _, c := range []struct {
		name     string
		scenario string
		fail     bool
	}{
		{name: "success", scenario: smallScenario},
		{name: "failure", scenario: conflictScenario, fail: true},
	} {
		c := c
		t.Run(c.name, func(t *testing.T) {
			s, err := ReadScenario(strings.NewReader(c.scenario))
			if err != nil {
				t.Fatal(err)
			}
			start, end, _ := s.Period()
			err = Run(context.Background(), log, s, "file://testbucket3/"+c.name+".nc", start, end, 1, nil)
			if (err != nil) != c.fail {
				t.Fatalf("err = %v", err)
			}
			files, err := ioutil.ReadDir(tmp)
			if err != nil {
				t.Fatal(err)
			}
			if len(files) != 0 {
				t.Errorf("%d entries left in the temporary directory", len(files))
			}
		})
	}
}

func TestUploaderLocalPath(t *testing.T) {
	log, _ := test.NewNullLogger()
	u := newUploader(log)
	if p, err := u.localPath("out.nc"); err != nil || p != "out.nc" {
		t.Errorf("local path = %q, %v", p, err)
	}
	a, err := u.localPath("gs://bucket/a/out.nc")
	if err != nil {
		t.Fatal(err)
	}
	b, err := u.localPath("s3://bucket/b/out.nc")
	if err != nil {
		t.Fatal(err)
	}
	defer u.cleanup()
	if a == b || filepath.Dir(a) != u.dir || filepath.Dir(b) != u.dir {
		t.Errorf("temporary paths %q and %q", a, b)
	}
	if len(u.files) != 2 || u.files[1][1] != "s3://bucket/b/out.nc" {
		t.Errorf("files = %v", u.files)
	}
}

func TestUploaderRetries(t *testing.T) {
	log, hook := test.NewNullLogger()
	u := newUploader(log)
	u.newBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2) }
	local, err := u.localPath("file://missingbucket/out.nc")
	if err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(local, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	err = u.upload(context.Background())
	u.cleanup()
	if err == nil {
		t.Fatal("upload to a missing bucket succeeded")
	}
	var retries int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("%d retries, want 2", retries)
	}
	if _, err := os.Stat(u.dir); !os.IsNotExist(err) {
		t.Errorf("temporary directory not removed: %v", err)
	}
}

func TestUploaderPermanentError(t *testing.T) {
	os.Mkdir("testbucket2", os.ModePerm)
	defer os.RemoveAll("testbucket2")
	log, hook := test.NewNullLogger()
	u := newUploader(log)
	u.newBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) }
	defer u.cleanup()
	// The local file is never written.
	if _, err := u.localPath("file://testbucket2/out.nc"); err != nil {
		t.Fatal(err)
	}
	if err := u.upload(context.Background()); err == nil {
		t.Fatal("upload of a missing file succeeded")
	}
	if n := len(hook.AllEntries()); n != 0 {
		t.Errorf("%d log entries for a permanent error", n)
	}
	if _, err := os.Stat(filepath.Join("testbucket2", "out.nc")); !os.IsNotExist(err) {
		t.Errorf("file uploaded: %v", err)
	}
}
