// Package lifecycle реализует lifecycle state machine.
//
// Граф переходов задаётся маленьким DSL ("A->B", "A<->B", разделители
// "," и пробелы). Next вычисляет BFS кратчайший путь и возвращает только
// следующий шаг, поэтому вызывающий может вести сущность к цели по одному
// переходу и пересчитывать шаг после каждого наблюдаемого изменения.
package lifecycle
