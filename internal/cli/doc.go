// Package cli реализует клиентскую часть командной строки Flume.
//
// # Обзор
//
// Команды группы pipeline работают с сервером Flume (flume serve) по
// HTTP и не импортируют внутренние пакеты движка.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Flume API. Инкапсулирует запросы, разбор ответов
// (DataResponse, ListResponse, ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	p, err := client.SubmitPipeline(spec)
//
// ## Output
//
// Форматирование вывода: таблицы (text/tabwriter) по умолчанию,
// JSON с флагом --json. Данные идут в stdout, сообщения в stderr:
//
//	flume pipeline list --json | jq .
//
// ## Commands
//
// NewPipelineCmd: submit, list, show, stop, functions. Фабрика принимает
// clientFn и outputFn — замыкания для ленивого создания Client и
// Output после разбора PersistentFlags.
package cli
