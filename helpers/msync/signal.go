package msync

type Nothing struct{}

// Signal wakes one waiter. Many Set before Wait collapse into one wakeup.
type Signal chan Nothing

func NewSignal() Signal { return make(chan Nothing, 1) }

func (s Signal) Set() {
	select {
	case s <- Nothing{}:
	default:
	}
}

func (s Signal) Wait() { <-s }

// Take consumes pending signal without blocking.
func (s Signal) Take() bool {
	select {
	case <-s:
		return true
	default:
		return false
	}
}
