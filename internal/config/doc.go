// Package config собирает конфигурацию flows из переменных окружения.
//
// Читаются AWS_ACCOUNT_ID, AWS_REGION, CFN_STACK_NAME и
// METAFLOW_TEST_NAMESPACE (плюс необязательный METAFLOW_PACKAGE_SUFFIXES).
// Перед чтением подгружается .env через godotenv.
//
// Из входов выводятся:
//   - ECRRegistry   — "{account}.dkr.ecr.{region}.amazonaws.com"
//   - ECRPath       — "{registry}/{stack}"
//   - BatchGPUQueue — "{stack}-gpu"
//
// Отсутствующая переменная не является ошибкой: на её месте
// появляется литерал "None". Validate сообщает о пропусках явно.
package config
