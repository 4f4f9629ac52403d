package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullEnv() map[string]string {
	return map[string]string{
		EnvAWSAccountID:  "123456789012",
		EnvAWSRegion:     "us-west-2",
		EnvCFNStackName:  "metaflow",
		EnvTestNamespace: "ci",
	}
}

func TestResolve(t *testing.T) {
	cfg := Resolve(MapLookup(fullEnv()))

	assert.Equal(t, "123456789012.dkr.ecr.us-west-2.amazonaws.com", cfg.ECRRegistry)
	assert.Equal(t, "metaflow", cfg.ECRNamespace)
	assert.Equal(t, "123456789012.dkr.ecr.us-west-2.amazonaws.com/metaflow", cfg.ECRPath)
	assert.Equal(t, "metaflow-gpu", cfg.BatchGPUQueue)
	assert.Equal(t, "ci", cfg.TestNamespace)
	assert.Equal(t, ".env", cfg.PackageSuffixes)
	assert.Equal(t, "metaflow-gpu", cfg.BatchQueue)
	assert.Equal(t,
		"123456789012.dkr.ecr.us-west-2.amazonaws.com/metaflow/pytorch-extras:2.4.0-cuda12.4-cudnn9-runtime",
		cfg.BatchImage)
	assert.Empty(t, cfg.Missing())
	assert.NoError(t, cfg.Validate())
}

func TestResolve_Deterministic(t *testing.T) {
	a := Resolve(MapLookup(fullEnv()))
	b := Resolve(MapLookup(fullEnv()))
	assert.Equal(t, a, b)
}

func TestResolve_QueueFromStackName(t *testing.T) {
	cfg := Resolve(MapLookup(map[string]string{EnvCFNStackName: "metaflow"}))
	assert.Equal(t, "metaflow-gpu", cfg.BatchGPUQueue)
}

func TestResolve_MissingVariablesBecomePlaceholder(t *testing.T) {
	cfg := Resolve(MapLookup(nil))

	assert.Equal(t, "None.dkr.ecr.None.amazonaws.com", cfg.ECRRegistry)
	assert.Equal(t, "None.dkr.ecr.None.amazonaws.com/None", cfg.ECRPath)
	assert.Equal(t, "None-gpu", cfg.BatchGPUQueue)
	assert.Equal(t, MissingPlaceholder, cfg.TestNamespace)
	assert.ElementsMatch(t,
		[]string{EnvAWSAccountID, EnvAWSRegion, EnvCFNStackName, EnvTestNamespace},
		cfg.Missing())

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrMissingEnv)
	assert.Contains(t, err.Error(), EnvCFNStackName)
}

func TestResolve_PartialEnv(t *testing.T) {
	cfg := Resolve(MapLookup(map[string]string{EnvAWSAccountID: "42"}))

	assert.Equal(t, "42.dkr.ecr.None.amazonaws.com", cfg.ECRRegistry)
	assert.NotContains(t, cfg.Missing(), EnvAWSAccountID)
}

func TestResolve_EmptyValueIsNotMissing(t *testing.T) {
	cfg := Resolve(MapLookup(map[string]string{EnvCFNStackName: ""}))
	assert.Equal(t, "-gpu", cfg.BatchGPUQueue)
	assert.NotContains(t, cfg.Missing(), EnvCFNStackName)
}

func TestResolve_PackageSuffixes(t *testing.T) {
	env := fullEnv()
	env[EnvPackageSuffixes] = ".env,.yaml"
	cfg := Resolve(MapLookup(env))
	assert.Equal(t, ".env,.yaml", cfg.PackageSuffixes)
}

func TestResolve_BatchDefaultsOverride(t *testing.T) {
	env := fullEnv()
	env[EnvBatchQueue] = "metaflow-cpu"
	env[EnvBatchImage] = "python:3.12"
	cfg := Resolve(MapLookup(env))

	assert.Equal(t, "metaflow-cpu", cfg.BatchQueue)
	assert.Equal(t, "python:3.12", cfg.BatchImage)
	assert.Equal(t, "metaflow-gpu", cfg.BatchGPUQueue)
	assert.Empty(t, cfg.Missing())
}

func TestConfig_Env(t *testing.T) {
	cfg := Resolve(MapLookup(map[string]string{EnvAWSRegion: "eu-west-1"}))
	env := cfg.Env()

	assert.Equal(t, "eu-west-1", env[EnvAWSRegion])
	assert.Equal(t, ".env", env[EnvPackageSuffixes])
	_, ok := env[EnvAWSAccountID]
	assert.False(t, ok, "missing variables must not be exported")
}

func TestConfig_Image(t *testing.T) {
	cfg := Resolve(MapLookup(fullEnv()))
	assert.Equal(t,
		"123456789012.dkr.ecr.us-west-2.amazonaws.com/metaflow/pytorch-extras:2.4.0-cuda12.4-cudnn9-runtime",
		cfg.Image("pytorch-extras:2.4.0-cuda12.4-cudnn9-runtime"))
}

func TestOverlayLookup(t *testing.T) {
	lookup := OverlayLookup(MapLookup(fullEnv()), map[string]string{EnvCFNStackName: "other"})
	cfg := Resolve(lookup)

	assert.Equal(t, "other-gpu", cfg.BatchGPUQueue)
	assert.Equal(t, "us-west-2", cfg.AWSRegion)

	cfg = Resolve(OverlayLookup(nil, map[string]string{EnvAWSRegion: "x"}))
	assert.Equal(t, "x", cfg.AWSRegion)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CFN_STACK_NAME=fromfile\nAWS_REGION=ap-south-1\n"), 0o600))

	// Переменная процесса имеет приоритет над файлом
	t.Setenv(EnvAWSRegion, "us-east-1")
	t.Cleanup(func() { os.Unsetenv(EnvCFNStackName) })

	cfg := Load(path)

	assert.Equal(t, "fromfile-gpu", cfg.BatchGPUQueue)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	t.Setenv(EnvCFNStackName, "metaflow")
	cfg := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Equal(t, "metaflow-gpu", cfg.BatchGPUQueue)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []string{
		EnvAWSAccountID, EnvAWSRegion, EnvCFNStackName, EnvBatchImage, EnvBatchQueue,
		EnvPackageSuffixes, EnvTestNamespace,
	}, Keys())
}
