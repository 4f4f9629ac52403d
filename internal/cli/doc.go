// Package cli реализует команды flowctl.
//
// # Обзор
//
// Команды делятся на две группы:
//   - локальные: запуск flows, шаг внутри контейнера AWS Batch,
//     вывод конфигурации и ближайших срабатываний расписаний;
//   - удалённые: runs и schedules через HTTP API flow-scheduler.
//
// # Ключевые компоненты
//
// ## App
//
// Общие зависимости локальных команд: конфигурация, реестр flows,
// логгер. Datastore выбирается флагом --datastore или FLOWS_DATASTORE,
// хранилище runs подключается к Postgres при заданном DB_URL.
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует запросы, конверты ответов
// ({data}, {data,total}, {error}) и ошибки (APIError).
//
//	client := cli.NewClient("http://localhost:8081")
//	runs, err := client.ListRuns(ctx, cli.ListRunsOpts{Flow: "ExampleFlow"})
//
// ## Output
//
// Форматирование вывода: таблицы text/tabwriter по умолчанию,
// JSON с флагом --json. Данные идут в stdout, сообщения в stderr:
//
//	flowctl runs list --json | jq .
//
// ## Commands
//
//   - <Flow> run, <Flow> show: по команде на каждый зарегистрированный flow
//   - runs: list, start, show, tasks, data
//   - schedule: next, list, enable, disable
//   - step: точка входа удалённого шага
//   - config: конфигурация стека
//
// Фабрики команд принимают clientFn и outputFn: Client и Output
// создаются лениво, после разбора PersistentFlags.
package cli
