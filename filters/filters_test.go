package filters

import (
	"testing"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addTest = &types.Test{
		ID:            "math.add",
		Name:          "Add",
		HierarchyPath: []string{"Root", "Math", "Add"},
		Categories:    []string{"smoke"},
		Properties:    map[string]string{"owner": "infra"},
		RunState:      types.RunStateRunnable,
	}
	slowTest = &types.Test{
		ID:            "math.slow",
		Name:          "Slow",
		HierarchyPath: []string{"Root", "Math", "Slow"},
		Categories:    []string{"slow"},
		RunState:      types.RunStateExplicit,
	}
	ioTest = &types.Test{
		ID:            "io.read",
		Name:          "Read",
		HierarchyPath: []string{"Root", "IO", "Read"},
		RunState:      types.RunStateRunnable,
	}
)

func TestEmpty(t *testing.T) {
	assert.True(t, Empty.Pass(addTest))
	assert.False(t, Empty.IsExplicitMatch(slowTest))
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(Empty))
	assert.False(t, IsEmpty(FullName("x")))
}

func TestFullName(t *testing.T) {
	f := FullName("Root/Math/Slow", "io.read")
	assert.True(t, f.Pass(slowTest))
	assert.True(t, f.IsExplicitMatch(slowTest))
	assert.True(t, f.Pass(ioTest), "IDs match too")
	assert.False(t, f.Pass(addTest))
}

func TestGlob(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		test         *types.Test
		wantPass     bool
		wantExplicit bool
	}{
		{"double star", []string{"Root/**"}, addTest, true, false},
		{"single star stays in segment", []string{"Root/*"}, addTest, false, false},
		{"segment wildcard", []string{"Root/*/Add"}, addTest, true, false},
		{"alternatives", []string{"Root/{IO,Net}/**"}, ioTest, true, false},
		{"literal name is explicit", []string{"Root/Math/Slow"}, slowTest, true, true},
		{"wildcard is never explicit", []string{"Root/Math/Sl*"}, slowTest, true, false},
		{"no match", []string{"Other/**"}, addTest, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Glob(tt.patterns...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPass, f.Pass(tt.test))
			assert.Equal(t, tt.wantExplicit, f.IsExplicitMatch(tt.test))
		})
	}

	_, err := Glob("Root/[")
	assert.Error(t, err)
}

func TestCategory(t *testing.T) {
	f := Category("Smoke")
	assert.True(t, f.Pass(addTest))
	assert.False(t, f.Pass(ioTest))
	assert.False(t, Category("slow").IsExplicitMatch(addTest))
	assert.True(t, Category("slow").IsExplicitMatch(slowTest))
}

func TestWhere(t *testing.T) {
	tests := []struct {
		expression string
		test       *types.Test
		want       bool
	}{
		{`"smoke" in categories`, addTest, true},
		{`"smoke" in categories`, ioTest, false},
		{`properties.owner == "infra"`, addTest, true},
		{`properties.owner == "infra"`, ioTest, false},
		{`fullName startsWith "Root/Math"`, slowTest, true},
		{`runState == "Explicit"`, slowTest, true},
		{`name == "Read" && id == "io.read"`, ioTest, true},
		{`len(path) == 3`, ioTest, true},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			f, err := Where(tt.expression)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Pass(tt.test))
			assert.Equal(t, tt.want, f.IsExplicitMatch(tt.test))
		})
	}
}

func TestWhereCompileErrors(t *testing.T) {
	_, err := Where(`name ==`)
	assert.Error(t, err)

	_, err = Where(`name`)
	assert.Error(t, err, "non-boolean expressions are rejected")

	_, err = Where(`unknownField == 1`)
	assert.Error(t, err)
}

func TestAnd(t *testing.T) {
	glob, err := Glob("Root/Math/**")
	require.NoError(t, err)

	f := And(glob, Category("smoke"))
	assert.True(t, f.Pass(addTest))
	assert.False(t, f.Pass(slowTest))

	explicit := And(FullName("Root/Math/Slow"), Category("slow"))
	assert.True(t, explicit.IsExplicitMatch(slowTest))

	// the glob has wildcards and the category does not apply
	assert.False(t, And(glob, Category("smoke")).IsExplicitMatch(slowTest))

	assert.True(t, And(Empty, nil).Pass(ioTest))
}

func TestOr(t *testing.T) {
	f := Or(FullName("Root/IO/Read"), Category("smoke"))
	assert.True(t, f.Pass(addTest))
	assert.True(t, f.Pass(ioTest))
	assert.False(t, f.Pass(slowTest))
	assert.True(t, f.IsExplicitMatch(ioTest))
	assert.True(t, Or().Pass(ioTest))
	assert.False(t, Or().IsExplicitMatch(ioTest))
}

func TestNot(t *testing.T) {
	f := Not(Category("slow"))
	assert.True(t, f.Pass(addTest))
	assert.False(t, f.Pass(slowTest))
	assert.False(t, f.IsExplicitMatch(addTest))
}
