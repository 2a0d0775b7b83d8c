// Package config загружает конфигурацию Flume из TOML файла и
// переменных окружения.
//
// Порядок: значения по умолчанию, затем файл, затем окружение
// (FLUME_PARALLELISM, FLUME_MAX_OUTPUTS, STATE_BACKEND, REDIS_ADDR,
// DB_URL, RABBITMQ_URL, METRICS_ADDR, LOG_LEVEL, LOG_FORMAT).
//
//	[runner]
//	parallelism = 8
//	max_outputs = 10000
//
//	[state]
//	backend = "redis"
//	redis_addr = "localhost:6379"
package config
