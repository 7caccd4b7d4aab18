package utils

import (
	"os"
	"path"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gopkg.in/yaml.v3"
)

type tStruct struct {
	Foo      string        `yaml:"foo"`
	Foo2     string        `yaml:"foo2"`
	Interval time.Duration `yaml:"interval"`
	List     []time.Duration
}

var defaultConfig = tStruct{"defaultfoo", "defaultfoo2", time.Minute, []time.Duration{time.Second}}

func writeConfigFile(t *testing.T, content string) string {
	fn := path.Join(t.TempDir(), "test_config.yml")
	assert.NilError(t, os.WriteFile(fn, []byte(content), 0o644))
	return fn
}

func TestReadMergeConfig(t *testing.T) {
	fn := writeConfigFile(t, "mysection:\n  foo: myfoo\n  interval: 5m30s\n")
	cr, err := NewConfigReader(logrus.StandardLogger(), fn)
	assert.NilError(t, err)

	myConfig := defaultConfig
	assert.NilError(t, cr.ReadSectionWithDefaults("mysection", &myConfig))
	assert.Equal(t, myConfig.Foo, "myfoo")
	assert.Equal(t, myConfig.Foo2, "defaultfoo2")
	assert.Equal(t, myConfig.Interval, 5*time.Minute+30*time.Second)
	assert.DeepEqual(t, myConfig.List, []time.Duration{time.Second})

	// reading an existing section does not require a write back
	assert.Assert(t, !cr.configChanged)
}

func TestMissingSectionIsWrittenBack(t *testing.T) {
	fn := writeConfigFile(t, "mysection:\n  foo: myfoo\n")
	cr, err := NewConfigReader(logrus.StandardLogger(), fn)
	assert.NilError(t, err)

	myConfig := defaultConfig
	assert.NilError(t, cr.ReadSectionWithDefaults("mynonexistingsection", &myConfig))
	assert.DeepEqual(t, myConfig, defaultConfig)
	assert.NilError(t, cr.WriteBackConfigIfChanged())

	b, err := os.ReadFile(fn)
	assert.NilError(t, err)
	newContent := map[string]map[string]interface{}{}
	assert.NilError(t, yaml.Unmarshal(b, &newContent))
	assert.Equal(t, len(newContent), 2)
	assert.Equal(t, newContent["mysection"]["foo"], "myfoo")
	_, ok := newContent["mysection"]["foo2"]
	assert.Equal(t, ok, false)
	assert.Equal(t, newContent["mynonexistingsection"]["foo2"], "defaultfoo2")
	assert.Equal(t, newContent["mynonexistingsection"]["interval"], "1m0s")
}

func TestNonExistingConfigFile(t *testing.T) {
	fn := path.Join(t.TempDir(), "sub", "config.yml")
	cr, err := NewConfigReader(logrus.StandardLogger(), fn)
	assert.NilError(t, err)

	myConfig := defaultConfig
	assert.NilError(t, cr.ReadSectionWithDefaults("mysection", &myConfig))
	assert.NilError(t, cr.WriteBackConfigIfChanged())

	cr2, err := NewConfigReader(logrus.StandardLogger(), fn)
	assert.NilError(t, err)
	readConfig := tStruct{}
	assert.NilError(t, cr2.ReadSectionWithDefaults("mysection", &readConfig))
	assert.DeepEqual(t, readConfig, defaultConfig)
}

func TestBrokenConfigFile(t *testing.T) {
	fn := writeConfigFile(t, "mysection: [\n")
	cr, err := NewConfigReader(logrus.StandardLogger(), fn)
	assert.Assert(t, err != nil)
	assert.Assert(t, is.Nil(cr))

	fn = writeConfigFile(t, "mysection:\n  interval: notaduration\n")
	cr, err = NewConfigReader(logrus.StandardLogger(), fn)
	assert.NilError(t, err)
	myConfig := defaultConfig
	assert.ErrorContains(t, cr.ReadSectionWithDefaults("mysection", &myConfig), "mysection")
}

func TestUnrelatedSectionsSurviveWriteBack(t *testing.T) {
	fn := writeConfigFile(t, "timeout:\n  interval: 30s\nother: {a: 1}\n")
	cr, err := NewConfigReader(logrus.StandardLogger(), fn)
	assert.NilError(t, err)

	myConfig := defaultConfig
	assert.NilError(t, cr.ReadSectionWithDefaults("timeout", &myConfig))
	assert.Equal(t, myConfig.Interval, 30*time.Second)
	assert.NilError(t, cr.ReadSectionWithDefaults("missing", &tStruct{}))
	assert.NilError(t, cr.WriteBackConfigIfChanged())

	b, err := os.ReadFile(fn)
	assert.NilError(t, err)
	newContent := map[string]map[string]interface{}{}
	assert.NilError(t, yaml.Unmarshal(b, &newContent))
	assert.Equal(t, newContent["timeout"]["interval"], "30s")
	assert.Equal(t, newContent["other"]["a"], 1)
}

func TestConfigFileMustBeAMapping(t *testing.T) {
	fn := writeConfigFile(t, "- timeout\n- dbus\n")
	_, err := NewConfigReader(logrus.StandardLogger(), fn)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	fn = writeConfigFile(t, "")
	cr, err := NewConfigReader(logrus.StandardLogger(), fn)
	assert.NilError(t, err)
	myConfig := defaultConfig
	assert.NilError(t, cr.ReadSectionWithDefaults("mysection", &myConfig))
	assert.DeepEqual(t, myConfig, defaultConfig)
}
