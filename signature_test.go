package jitcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitcache/jitcache"
	"github.com/jitcache/jitcache/kit/errors"
)

func mustSignature(t *testing.T, name string, args []jitcache.Argument) jitcache.Signature {
	t.Helper()
	sig, err := jitcache.BuildSignature(name, args)
	require.NoError(t, err)
	return sig
}

func param(kind jitcache.DataKind, dims ...int64) jitcache.Argument {
	return jitcache.Argument{Kind: jitcache.ArgumentParameter, Type: kind, Shape: dims}
}

func constant(kind jitcache.DataKind, data ...byte) jitcache.Argument {
	return jitcache.Argument{
		Kind:  jitcache.ArgumentConstant,
		Value: &jitcache.Literal{Type: kind, Shape: jitcache.Shape{int64(len(data))}, Data: data},
	}
}

func TestBuildSignature_Deterministic(t *testing.T) {
	args := []jitcache.Argument{
		param(jitcache.Float32, 2, 3),
		param(jitcache.Int64),
		constant(jitcache.Int32, 1, 0, 0, 0),
	}

	a := mustSignature(t, "cluster_0", args)
	b := mustSignature(t, "cluster_0", args)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, "cluster_0", a.Name())
}

func TestBuildSignature_Inequality(t *testing.T) {
	base := mustSignature(t, "cluster_0", []jitcache.Argument{
		param(jitcache.Float32, 2, 3),
		constant(jitcache.Int32, 1, 2),
	})

	cases := []struct {
		name string
		sig  jitcache.Signature
	}{
		{
			name: "different name",
			sig: mustSignature(t, "cluster_1", []jitcache.Argument{
				param(jitcache.Float32, 2, 3),
				constant(jitcache.Int32, 1, 2),
			}),
		},
		{
			name: "different element type",
			sig: mustSignature(t, "cluster_0", []jitcache.Argument{
				param(jitcache.Float64, 2, 3),
				constant(jitcache.Int32, 1, 2),
			}),
		},
		{
			name: "transposed shape",
			sig: mustSignature(t, "cluster_0", []jitcache.Argument{
				param(jitcache.Float32, 3, 2),
				constant(jitcache.Int32, 1, 2),
			}),
		},
		{
			name: "extra parameter",
			sig: mustSignature(t, "cluster_0", []jitcache.Argument{
				param(jitcache.Float32, 2, 3),
				param(jitcache.Int64),
				constant(jitcache.Int32, 1, 2),
			}),
		},
		{
			name: "different constant value",
			sig: mustSignature(t, "cluster_0", []jitcache.Argument{
				param(jitcache.Float32, 2, 3),
				constant(jitcache.Int32, 2, 1),
			}),
		},
		{
			name: "constant becomes parameter",
			sig: mustSignature(t, "cluster_0", []jitcache.Argument{
				param(jitcache.Float32, 2, 3),
				param(jitcache.Int32, 2),
			}),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, base.Equal(tc.sig))
			assert.NotEqual(t, base.Key(), tc.sig.Key())
			assert.NotEqual(t, base.Hash(), tc.sig.Hash())
		})
	}
}

func TestBuildSignature_Invalid(t *testing.T) {
	cases := []struct {
		name string
		args []jitcache.Argument
	}{
		{
			name: "constant without value",
			args: []jitcache.Argument{{Kind: jitcache.ArgumentConstant}},
		},
		{
			name: "parameter without element type",
			args: []jitcache.Argument{{Kind: jitcache.ArgumentParameter, Shape: jitcache.Shape{2}}},
		},
		{
			name: "negative dimension",
			args: []jitcache.Argument{{Kind: jitcache.ArgumentParameter, Type: jitcache.Float32, Shape: jitcache.Shape{-1}}},
		},
		{
			name: "invalid argument kind",
			args: []jitcache.Argument{{Kind: jitcache.ArgumentInvalid, Type: jitcache.Float32}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := jitcache.BuildSignature("cluster_0", tc.args)
			require.Error(t, err)
			assert.Equal(t, errors.EInvalid, errors.ErrorCode(err))
		})
	}
}

func TestSignature_ImmutableAfterBuild(t *testing.T) {
	dims := jitcache.Shape{2, 3}
	data := []byte{9, 9}
	args := []jitcache.Argument{
		{Kind: jitcache.ArgumentParameter, Type: jitcache.Float32, Shape: dims},
		{Kind: jitcache.ArgumentConstant, Value: &jitcache.Literal{Type: jitcache.Uint8, Shape: jitcache.Shape{2}, Data: data}},
	}

	sig := mustSignature(t, "cluster_0", args)
	key := sig.Key()

	// Mutating the caller's backing arrays must not change the signature.
	dims[0] = 7
	data[0] = 0

	assert.Equal(t, key, sig.Key())
	assert.True(t, sig.Equal(mustSignature(t, "cluster_0", []jitcache.Argument{
		{Kind: jitcache.ArgumentParameter, Type: jitcache.Float32, Shape: jitcache.Shape{2, 3}},
		{Kind: jitcache.ArgumentConstant, Value: &jitcache.Literal{Type: jitcache.Uint8, Shape: jitcache.Shape{2}, Data: []byte{9, 9}}},
	})))
}

func TestSignature_HumanString(t *testing.T) {
	sig := mustSignature(t, "cluster_0", []jitcache.Argument{
		param(jitcache.Float32, 2, 3),
		constant(jitcache.Uint8, 0xab),
	})

	assert.Equal(t, "cluster_0,f32[2,3],u8[1]=ab", sig.HumanString())
}

func TestParseCompileMode(t *testing.T) {
	for _, mode := range []jitcache.CompileMode{jitcache.ModeLazy, jitcache.ModeStrict, jitcache.ModeAsync} {
		got, err := jitcache.ParseCompileMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}

	_, err := jitcache.ParseCompileMode("eager")
	require.Error(t, err)
}
