// Package cloud выделяет и уничтожает машины агентов.
//
// Driver — граница с облаком. LocalDriver держит машины в памяти
// и через hooks поднимает агентов в том же процессе.
package cloud
