package cvars

import (
	"bytes"
	"fmt"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestRegistry(env map[string]string) *Registry {
	return NewRegistry(func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	})
}

func TestBoolVar(t *testing.T) {
	for _, val := range []string{"y", "yes", "true", "1", "T", "YES"} {
		r := newTestRegistry(map[string]string{"X": val})
		assert.True(t, r.Bool("X", false, "").Get(), val)
	}
	for _, val := range []string{"n", "no", "false", "0", "F", "No"} {
		r := newTestRegistry(map[string]string{"X": val})
		assert.False(t, r.Bool("X", true, "").Get(), val)
	}
	r := newTestRegistry(map[string]string{"X": "maybe"})
	assert.True(t, r.Bool("X", false, "").Get())

	r = newTestRegistry(nil)
	assert.False(t, r.Bool("X", false, "").Get())
	assert.True(t, r.Bool("Y", true, "").Get())
}

func TestIntVar(t *testing.T) {
	cases := map[string]int{
		"-100":    -100,
		"0":       0,
		"9999":    9999,
		"  42abc": 42,
		"+7":      7,
		"abc":     0,
		"":        0,
	}
	for raw, expected := range cases {
		r := newTestRegistry(map[string]string{"X": raw})
		assert.Equal(t, expected, r.Int("X", 5, "").Get(), raw)
	}
	huge := newTestRegistry(map[string]string{"X": "99999999999999999999"})
	assert.Equal(t, math.MaxInt, huge.Int("X", 5, "").Get())
	assert.Equal(t, 5, newTestRegistry(nil).Int("X", 5, "").Get())
}

func TestStringVar(t *testing.T) {
	r := newTestRegistry(map[string]string{"A": "val1", "B": "  val2_with_space   "})
	assert.Equal(t, "val1", r.String("A", "", "").Get())
	assert.Equal(t, "val2_with_space", r.String("B", "", "").Get())
	assert.Equal(t, "dflt", r.String("C", " dflt ", "").Get())
}

func TestStringListVar(t *testing.T) {
	cases := map[string][]string{
		"val1,val2,val3":       {"val1", "val2", "val3"},
		"val1:1,val2:2,val3:3": {"val1:1", "val2:2", "val3:3"},
		"val":                  {"val"},
		"val1, val_w_space  ":  {"val1", "val_w_space"},
		"a,,b,a":               {"a", "b"},
	}
	for raw, expected := range cases {
		r := newTestRegistry(map[string]string{"X": raw})
		assert.Equal(t, expected, r.StringList("X", "", "").Get(), raw)
	}
	assert.Empty(t, newTestRegistry(nil).StringList("X", "", "").Get())
	assert.Equal(t, []string{"p", "q"}, newTestRegistry(nil).StringList("X", "p,q", "").Get())
}

func TestEnumVar(t *testing.T) {
	choices := []string{"tree", "flat"}
	r := newTestRegistry(map[string]string{"A": "flat", "B": "ring"})
	assert.Equal(t, "flat", r.Enum("A", choices, "tree", "").Get())
	assert.Equal(t, "tree", r.Enum("B", choices, "tree", "").Get())
	assert.Equal(t, "tree", r.Enum("C", choices, "tree", "").Get())
	assert.Panics(t, func() { r.Enum("D", choices, "ring", "") })
}

func TestEnumListVar(t *testing.T) {
	choices := []string{"A", "B", "C"}
	r := newTestRegistry(map[string]string{"X": "A,B,C", "Y": "B,Z", "W": "C"})
	assert.Equal(t, choices, r.EnumList("X", choices, "A", "").Get())
	y := r.EnumList("Y", choices, "A", "")
	assert.Equal(t, []string{"B"}, y.Get())
	assert.True(t, y.Has("B"))
	assert.False(t, y.Has("A"))
	assert.Equal(t, []string{"C"}, r.EnumList("W", choices, "A", "").Get())
	assert.Equal(t, []string{"A", "B"}, r.EnumList("V", choices, "A,B", "").Get())
}

func TestReload(t *testing.T) {
	env := map[string]string{"X": "1"}
	r := newTestRegistry(env)
	v := r.Int("X", 0, "")
	assert.Equal(t, 1, v.Get())
	env["X"] = "2"
	assert.Equal(t, 1, v.Get())
	r.Load()
	assert.Equal(t, 2, v.Get())

	late := r.Int("LATE", 3, "")
	assert.Equal(t, 3, late.Get())
	assert.Panics(t, func() { r.Int("X", 0, "") })
}

func TestDescribe(t *testing.T) {
	r := newTestRegistry(nil)
	r.Int("DDA_SOMETHING", 12, "First line.\nSecond line.")
	r.Bool("DDA_FLAG", true, "A flag.")
	var buf bytes.Buffer
	assert.NoError(t, r.Describe(&buf))
	expected := fmt.Sprintf("\n%s\nDescription:\n    First line.\n    Second line.\nType: int\nDefault: 12\n"+
		"\n%s\nDescription:\n    A flag.\nType: bool\nDefault: true\n", "DDA_SOMETHING", "DDA_FLAG")
	assert.Equal(t, expected, buf.String())
	assert.Len(t, r.Vars(), 2)
}

func TestConfigureLogging(t *testing.T) {
	old := logrus.GetLevel()
	defer logrus.SetLevel(old)

	t.Setenv("DDA_DEBUG", "DEBUG")
	Default.Load()
	ConfigureLogging()
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	t.Setenv("DDA_DEBUG", "LOUD")
	Default.Load()
	ConfigureLogging()
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
}
