package stock

import "sync"

// pairLocks сериализует операции read-modify-write по ключу пары (variant, warehouse).
// Проверка инварианта и запись не должны чередоваться для одной пары; optimistic
// locking репозитория остаётся второй линией защиты от внешних писателей.
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *pairLocks) get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// lock захватывает мьютекс пары и возвращает функцию освобождения.
func (l *pairLocks) lock(key string) func() {
	lock := l.get(key)
	lock.Lock()
	return lock.Unlock
}

// lockBoth захватывает мьютексы двух пар в детерминированном порядке,
// чтобы встречные перемещения не взаимоблокировались.
func (l *pairLocks) lockBoth(first, second string) func() {
	if first == second {
		return l.lock(first)
	}
	if second < first {
		first, second = second, first
	}

	a := l.get(first)
	b := l.get(second)
	a.Lock()
	b.Lock()
	return func() {
		b.Unlock()
		a.Unlock()
	}
}
