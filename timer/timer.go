// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// DefaultResolution 调度精度
const DefaultResolution = 100 * time.Millisecond

type TimerTask struct {
	Id       int64
	Name     string
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
	running  bool
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager runs delayed and repeating callbacks from a single heap.
// A repeating task never overlaps itself: a tick that fires while the previous run is still going is skipped.
type TimerManager struct {
	queue      TimerQueue
	mutex      sync.Mutex
	nextId     int64
	resolution time.Duration
	now        func() time.Time
	done       chan struct{}
	exited     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// Option configures a TimerManager.
type Option func(*TimerManager)

// WithResolution sets how often the heap is polled.
func WithResolution(d time.Duration) Option {
	return func(m *TimerManager) {
		if d > 0 {
			m.resolution = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *TimerManager) { m.now = now }
}

func NewTimerManager(opts ...Option) *TimerManager {
	manager := &TimerManager{
		queue:      make(TimerQueue, 0),
		nextId:     1,
		resolution: DefaultResolution,
		now:        time.Now,
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(manager)
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

// AddTimer schedules callback after delay, then every interval if interval > 0.
func (m *TimerManager) AddTimer(name string, delay, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Name:     name,
		Execute:  m.now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	return task.Id
}

func (m *TimerManager) RemoveTimer(timerId int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, task := range m.queue {
		if task.Id == timerId {
			heap.Remove(&m.queue, i)
			return true
		}
	}
	return false
}

// Len returns the number of scheduled tasks.
func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop halts scheduling and waits for running callbacks to return.
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
	<-m.exited
	m.wg.Wait()
}

func (m *TimerManager) process() {
	defer close(m.exited)
	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			for _, task := range m.due() {
				m.run(task)
			}
		}
	}
}

// due pops every task whose time has come and re-queues repeating ones.
func (m *TimerManager) due() []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	var fired []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		if !task.running {
			task.running = true
			fired = append(fired, task)
		}
		if task.Interval > 0 {
			task.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, task)
		}
	}
	return fired
}

func (m *TimerManager) run(task *TimerTask) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mutex.Lock()
			task.running = false
			m.mutex.Unlock()
		}()
		task.Callback()
	}()
}
