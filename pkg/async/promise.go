package async

// Result carries the value and error of a finished Promise.
type Result[R any] struct {
	Value R
	Err   error
}

// Promise runs f in a new goroutine and delivers its result on the returned channel.
func Promise[R any](f func() (R, error)) <-chan Result[R] {
	out := make(chan Result[R], 1)
	go func() {
		v, err := f()
		out <- Result[R]{v, err}
	}()
	return out
}
