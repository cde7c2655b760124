package camera

import "sync"

// Looper is a single background goroutine that runs posted callbacks in
// order. All device and session callbacks of a Controller run on its Looper.
type Looper struct {
	name string

	mu      sync.Mutex
	queue   []func()
	started bool
	quit    bool
	wake    chan struct{}
	done    chan struct{}
}

// NewLooper creates a stopped looper.
func NewLooper(name string) *Looper {
	return &Looper{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Name returns the looper name used in logs.
func (l *Looper) Name() string {
	return l.name
}

// Start launches the goroutine. Starting twice, or after a quit, does nothing.
func (l *Looper) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.quit {
		return
	}
	l.started = true
	go l.loop()
}

// Post queues fn. It returns false once the looper has been asked to quit.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	if l.quit {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// QuitSafely stops accepting callbacks; those already queued still run.
func (l *Looper) QuitSafely() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quit {
		return
	}
	l.quit = true
	if !l.started {
		close(l.done)
		return
	}
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Join blocks until the goroutine has exited. Only valid after QuitSafely.
func (l *Looper) Join() {
	<-l.done
}

func (l *Looper) loop() {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		quit := l.quit
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}
		if quit {
			return
		}
		<-l.wake
	}
}
