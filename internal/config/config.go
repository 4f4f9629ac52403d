package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Переменные окружения, из которых строится конфигурация.
const (
	EnvAWSAccountID     = "AWS_ACCOUNT_ID"
	EnvAWSRegion        = "AWS_REGION"
	EnvCFNStackName     = "CFN_STACK_NAME"
	EnvTestNamespace    = "METAFLOW_TEST_NAMESPACE"
	EnvPackageSuffixes  = "METAFLOW_PACKAGE_SUFFIXES"
	EnvBatchQueue       = "FLOWS_BATCH_QUEUE"
	EnvBatchImage       = "FLOWS_BATCH_IMAGE"
	defaultPackageSuffs = ".env"
)

// DefaultBatchImage — образ шагов AWS Batch по умолчанию, относительно ECRPath.
const DefaultBatchImage = "pytorch-extras:2.4.0-cuda12.4-cudnn9-runtime"

// MissingPlaceholder — значение, которое подставляется вместо
// отсутствующей переменной окружения.
const MissingPlaceholder = "None"

// ErrMissingEnv — не заданы обязательные переменные окружения.
var ErrMissingEnv = errors.New("missing environment variables")

// ConfigDeps — зависимости, которые нужны потребителям конфигурации
// в удалённом окружении. Подключаются к flow как базовые пакеты.
var ConfigDeps = map[string]string{"python-dotenv": "1.0.1"}

// inputKeys — переменные, читаемые при загрузке.
var inputKeys = []string{EnvAWSAccountID, EnvAWSRegion, EnvCFNStackName, EnvTestNamespace}

// LookupFunc — источник значений переменных окружения.
type LookupFunc func(key string) (string, bool)

// Config — конфигурация, общая для всех flows.
//
// Значения читаются один раз и далее не меняются.
// Отсутствующие переменные не приводят к ошибке: вместо них
// в производные строки попадает MissingPlaceholder.
type Config struct {
	// AWSAccountID — ID аккаунта AWS.
	AWSAccountID string `json:"aws_account_id"`

	// AWSRegion — регион AWS.
	AWSRegion string `json:"aws_region"`

	// CFNStackName — имя CloudFormation стека инфраструктуры.
	CFNStackName string `json:"cfn_stack_name"`

	// TestNamespace — namespace для тестовых запусков.
	TestNamespace string `json:"test_namespace"`

	// ECRRegistry — "{account}.dkr.ecr.{region}.amazonaws.com".
	ECRRegistry string `json:"ecr_registry"`

	// ECRNamespace — namespace репозиториев в ECR (имя стека).
	ECRNamespace string `json:"ecr_namespace"`

	// ECRPath — "{registry}/{namespace}", префикс путей к образам.
	ECRPath string `json:"ecr_path"`

	// BatchGPUQueue — "{stack}-gpu", очередь AWS Batch с GPU.
	BatchGPUQueue string `json:"batch_gpu_queue"`

	// BatchQueue — очередь для шагов на batch без явной очереди.
	// По умолчанию BatchGPUQueue: другой очереди стек не создаёт.
	BatchQueue string `json:"batch_queue"`

	// BatchImage — образ для шагов на batch без явного образа,
	// по умолчанию "{ECRPath}/DefaultBatchImage".
	BatchImage string `json:"batch_image"`

	// PackageSuffixes — суффиксы файлов, упаковываемых вместе с кодом
	// для удалённого выполнения.
	PackageSuffixes string `json:"package_suffixes"`

	// missing — переменные, которых не было при загрузке.
	missing []string
}

// Resolve строит Config из источника переменных.
//
// Это чистая функция: одинаковые входы всегда дают одинаковые строки.
func Resolve(lookup LookupFunc) Config {
	var missing []string
	get := func(key string) string {
		if v, ok := lookup(key); ok {
			return v
		}
		missing = append(missing, key)
		return MissingPlaceholder
	}

	cfg := Config{
		AWSAccountID:  get(EnvAWSAccountID),
		AWSRegion:     get(EnvAWSRegion),
		CFNStackName:  get(EnvCFNStackName),
		TestNamespace: get(EnvTestNamespace),
	}

	cfg.ECRRegistry = fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com", cfg.AWSAccountID, cfg.AWSRegion)
	cfg.ECRNamespace = cfg.CFNStackName
	cfg.ECRPath = fmt.Sprintf("%s/%s", cfg.ECRRegistry, cfg.ECRNamespace)
	cfg.BatchGPUQueue = fmt.Sprintf("%s-gpu", cfg.CFNStackName)

	cfg.BatchQueue = cfg.BatchGPUQueue
	if v, ok := lookup(EnvBatchQueue); ok && v != "" {
		cfg.BatchQueue = v
	}
	cfg.BatchImage = cfg.Image(DefaultBatchImage)
	if v, ok := lookup(EnvBatchImage); ok && v != "" {
		cfg.BatchImage = v
	}

	cfg.PackageSuffixes = defaultPackageSuffs
	if v, ok := lookup(EnvPackageSuffixes); ok && v != "" {
		cfg.PackageSuffixes = v
	}

	cfg.missing = missing
	return cfg
}

// Load загружает dotenv-файлы (по умолчанию ".env") и строит Config
// из окружения процесса.
//
// Отсутствующий файл не является ошибкой. Уже заданные переменные
// окружения не перезаписываются значениями из файла.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
	return Resolve(os.LookupEnv)
}

var (
	defaultOnce sync.Once
	defaultCfg  Config
)

// Default возвращает конфигурацию процесса.
// Загружается один раз при первом вызове.
func Default() Config {
	defaultOnce.Do(func() {
		defaultCfg = Load()
	})
	return defaultCfg
}

// Missing возвращает имена переменных, отсутствовавших при загрузке.
func (c Config) Missing() []string {
	return append([]string(nil), c.missing...)
}

// Validate возвращает ErrMissingEnv, если какие-то переменные отсутствовали.
//
// Resolve никогда не вызывает Validate: пропуски молча превращаются
// в MissingPlaceholder. Validate — для вызывающих, которым это важно.
func (c Config) Validate() error {
	if len(c.missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(c.missing, ", "))
}

// Env возвращает исходные переменные в виде KEY=VALUE для передачи
// в удалённые задания. Отсутствовавшие переменные не включаются.
func (c Config) Env() map[string]string {
	absent := make(map[string]bool, len(c.missing))
	for _, k := range c.missing {
		absent[k] = true
	}

	values := map[string]string{
		EnvAWSAccountID:  c.AWSAccountID,
		EnvAWSRegion:     c.AWSRegion,
		EnvCFNStackName:  c.CFNStackName,
		EnvTestNamespace: c.TestNamespace,
	}

	env := make(map[string]string, len(values)+1)
	for k, v := range values {
		if !absent[k] {
			env[k] = v
		}
	}
	env[EnvPackageSuffixes] = c.PackageSuffixes
	return env
}

// Image возвращает полный путь к образу в ECR: "{ECRPath}/{name}".
func (c Config) Image(name string) string {
	return c.ECRPath + "/" + name
}

// Keys возвращает отсортированный список читаемых переменных.
func Keys() []string {
	keys := append([]string(nil), inputKeys...)
	keys = append(keys, EnvPackageSuffixes, EnvBatchQueue, EnvBatchImage)
	sort.Strings(keys)
	return keys
}

// MapLookup возвращает LookupFunc поверх map.
func MapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// OverlayLookup возвращает LookupFunc, где overrides имеют приоритет над base.
func OverlayLookup(base LookupFunc, overrides map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := overrides[key]; ok {
			return v, true
		}
		if base == nil {
			return "", false
		}
		return base(key)
	}
}
