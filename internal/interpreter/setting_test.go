package interpreter

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/interpctl/internal/project"
)

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry([]RegisteredInterpreter{
		{Group: "spark", Name: "pyspark", Command: "pyspark-cmd"},
		{Group: "spark", Name: "spark", Command: "spark-cmd", Properties: map[string]Property{"spark.master": {Default: "local[*]"}}},
		{Group: "python", Command: "python-cmd"},
	})
	require.NoError(t, err)

	all := reg.All()
	assert.Len(t, all, 3)
	assert.Contains(t, all, "spark.pyspark")
	assert.Contains(t, all, "python.python")

	sp, ok := reg.ByGroup("spark")
	require.True(t, ok)
	assert.Equal(t, "spark-cmd", sp.Command, "entry named after the group wins")

	_, ok = reg.ByGroup("md")
	assert.False(t, ok)
	assert.Equal(t, []string{"python", "spark"}, reg.Groups())

	// snapshot copies cannot change the registry
	all["spark.spark"].Properties["spark.master"] = Property{Default: "yarn"}
	sp, _ = reg.ByGroup("spark")
	assert.Equal(t, "local[*]", sp.Properties["spark.master"].Default)
}

func TestRegistryRejectsBadInput(t *testing.T) {
	_, err := NewRegistry([]RegisteredInterpreter{{Name: "x"}})
	assert.Error(t, err)
	_, err = NewRegistry([]RegisteredInterpreter{{Group: "a"}, {Group: "a", Name: "a"}})
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "ZEPPELIN_PYTHON_MAXRESULT", envKey("zeppelin.python.maxResult"))
	assert.Equal(t, "SPARK_HOME", envKey("SPARK_HOME"))
	assert.Equal(t, "A_B_C", envKey(" a-b c "))
}

func TestProcessEnv(t *testing.T) {
	t.Setenv("INTERPCTL_TEST_HOME", "/opt/home")
	reg := RegisteredInterpreter{Group: "python", Properties: map[string]Property{
		"zeppelin.python":   {Default: "python"},
		"zeppelin.py.extra": {Default: ""},
	}}
	s := Setting{ID: "s1", Group: "python", Properties: map[string]string{
		"zeppelin.python": "${INTERPCTL_TEST_HOME}/bin/python3",
		"script":          "echo $HOME",
	}}
	global := []string{"JAVA_OPTS=-Xmx1g", "ZEPPELIN_PYTHON=ignored", "bogus"}
	env := processEnv(global, reg, s, project.Project{ID: 7, Name: "alpha"})
	joined := strings.Join(env, "\n")
	assert.Contains(t, env, "ZEPPELIN_PYTHON=/opt/home/bin/python3")
	assert.Contains(t, env, "SCRIPT=echo $HOME")
	assert.Contains(t, env, "INTERPCTL_PROJECT_ID=7")
	assert.Contains(t, env, "INTERPCTL_PROJECT=alpha")
	assert.Contains(t, env, "INTERPCTL_GROUP=python")
	assert.Contains(t, env, "INTERPCTL_SETTING_ID=s1")
	assert.Contains(t, env, "JAVA_OPTS=-Xmx1g")
	assert.NotContains(t, joined, "ZEPPELIN_PY_EXTRA")
	assert.NotContains(t, joined, "ignored")
	assert.NotContains(t, joined, "bogus")
}

func TestExpand(t *testing.T) {
	look := func(k string) string { return map[string]string{"A": "1"}[k] }
	assert.Equal(t, "x1y", expand("x${A}y", look))
	assert.Equal(t, "xy", expand("x${MISSING}y", look))
	assert.Equal(t, "x${A", expand("x${A", look))
	assert.Equal(t, os.ExpandEnv("plain"), expand("plain", look))
}
