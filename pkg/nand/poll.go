package nand

import "time"

// Poll calls ready up to limit times, sleeping interval between calls, until
// it reports true. It returns the number of calls made. After limit
// unsuccessful calls it returns ErrTimeout. Errors from ready are returned as
// is.
func Poll(limit int, interval time.Duration, sleep func(time.Duration), ready func() (bool, error)) (int, error) {
	for i := 1; i <= limit; i++ {
		ok, err := ready()
		if err != nil {
			return i, err
		}
		if ok {
			return i, nil
		}
		if i < limit {
			sleep(interval)
		}
	}
	return limit, ErrTimeout
}
