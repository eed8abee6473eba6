// Package effector содержит внешние действия агента над service instances.
//
// Агент двигает instance по жизненному циклу, effector выполняет
// реальную работу перехода: nop ничего не делает, delay имитирует
// долгую установку, webhook сообщает о переходе внешней системе.
package effector
