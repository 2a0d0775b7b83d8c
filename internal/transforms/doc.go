// Package transforms содержит реестр пользовательских функций pipeline.
//
// Стадии ссылаются на функции по имени (StageDef.Fn). Реестр хранит
// фабрики трёх видов:
//   - RootFn — источник элементов для стадии create
//   - DoFn — поэлементное преобразование для стадии par_do
//   - splittable.Fn — функция для стадий split и process
//
// Фабрика получает StageDef.Config и возвращает экземпляр функции,
// поэтому одна функция может использоваться разными стадиями
// с разными параметрами.
//
// # Встроенные функции
//
//   - range — числа [start, start+count)
//   - keyed_range — KV{prefix+(i mod keys), i}
//   - identity — элемент без изменений
//   - explode_values — KV{k, [v...]} → KV{k, v} для каждого v
//   - count_values — KV{k, [v...]} → KV{k, len}
//   - count_to — splittable: позиции [0, n) с checkpoint'ами
package transforms
