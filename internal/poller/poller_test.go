package poller_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/bowlsense/internal/poller"
	. "github.com/smartystreets/goconvey/convey"
)

// stepClock advances instantly whenever the poller waits.
type stepClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	t := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- t
	return ch
}

func counter() (func(context.Context) (int, error), *int) {
	n := 0
	return func(context.Context) (int, error) {
		n++
		return n, nil
	}, &n
}

func TestPollCompletes(t *testing.T) {
	Convey("Given a job that finishes on the third poll", t, func() {
		clk := newStepClock()
		fetch, _ := counter()
		var seen []int

		res, err := poller.Poll(context.Background(), fetch,
			func(v int) bool { return v == 3 },
			poller.WithClock[int](clk),
			poller.WithInterval[int](2*time.Second),
			poller.WithTimeout[int](10*time.Second),
			poller.WithObserver(func(v int) { seen = append(seen, v) }),
		)

		Convey("Then it returns the terminal value", func() {
			So(err, ShouldBeNil)
			So(res.Value, ShouldEqual, 3)
			So(res.Attempts, ShouldEqual, 3)
			So(res.TimedOut, ShouldBeFalse)
			So(res.Elapsed, ShouldEqual, 4*time.Second)
			So(seen, ShouldResemble, []int{1, 2, 3})
		})
	})
}

func TestPollTimeout(t *testing.T) {
	Convey("Given a job that never finishes", t, func() {
		clk := newStepClock()
		fetch, _ := counter()

		res, err := poller.Poll(context.Background(), fetch,
			func(int) bool { return false },
			poller.WithClock[int](clk),
			poller.WithInterval[int](2*time.Second),
			poller.WithTimeout[int](10*time.Second),
		)

		Convey("Then it resolves with the last value instead of failing", func() {
			So(err, ShouldBeNil)
			So(res.TimedOut, ShouldBeTrue)
			So(res.Attempts, ShouldEqual, 5)
			So(res.Value, ShouldEqual, 5)
			So(res.Elapsed, ShouldEqual, 10*time.Second)
		})
	})

	Convey("Given a timeout that is not a multiple of the interval", t, func() {
		clk := newStepClock()
		fetch, _ := counter()

		res, err := poller.Poll(context.Background(), fetch,
			func(int) bool { return false },
			poller.WithClock[int](clk),
			poller.WithInterval[int](3*time.Second),
			poller.WithTimeout[int](10*time.Second),
		)

		Convey("Then the last wait is shortened to the deadline", func() {
			So(err, ShouldBeNil)
			So(res.TimedOut, ShouldBeTrue)
			So(res.Attempts, ShouldEqual, 4)
			So(clk.waits, ShouldResemble, []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second, time.Second})
		})
	})
}

func TestPollSlowFetch(t *testing.T) {
	Convey("Given a fetch that hangs until its context ends", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		calls := 0
		fetch := func(ctx context.Context) (int, error) {
			calls++
			if calls == 2 {
				<-ctx.Done()
				return 0, ctx.Err()
			}
			return calls, nil
		}

		began := time.Now()
		res, err := poller.Poll(ctx, fetch, func(int) bool { return false },
			poller.WithInterval[int](10*time.Millisecond),
			poller.WithTimeout[int](100*time.Millisecond))

		Convey("Then the deadline still resolves the poll", func() {
			So(err, ShouldBeNil)
			So(res.TimedOut, ShouldBeTrue)
			So(res.Value, ShouldEqual, 1)
			So(res.Attempts, ShouldEqual, 2)
			So(time.Since(began), ShouldBeLessThan, time.Second)
		})
	})

	Convey("Given a fetch that ignores its context", t, func() {
		release := make(chan struct{})
		defer close(release)
		fetch := func(context.Context) (int, error) {
			<-release
			return 1, nil
		}

		began := time.Now()
		res, err := poller.Poll(context.Background(), fetch, func(int) bool { return true },
			poller.WithTimeout[int](50*time.Millisecond))

		So(err, ShouldBeNil)
		So(res.TimedOut, ShouldBeTrue)
		So(time.Since(began), ShouldBeLessThan, time.Second)
	})
}

func TestPollErrors(t *testing.T) {
	errFlaky := errors.New("connection reset")
	errAuth := errors.New("unauthorized")

	Convey("Given transient errors below the limit", t, func() {
		calls := 0
		fetch := func(context.Context) (string, error) {
			calls++
			if calls <= 2 {
				return "", errFlaky
			}
			return "done", nil
		}
		var counts []int

		res, err := poller.Poll(context.Background(), fetch,
			func(s string) bool { return s == "done" },
			poller.WithClock[string](newStepClock()),
			poller.WithMaxErrors[string](2),
			poller.WithErrorObserver[string](func(_ error, n int) { counts = append(counts, n) }),
		)

		So(err, ShouldBeNil)
		So(res.Value, ShouldEqual, "done")
		So(res.Attempts, ShouldEqual, 3)
		So(counts, ShouldResemble, []int{1, 2})
	})

	Convey("Given errors separated by successes", t, func() {
		calls := 0
		fetch := func(context.Context) (int, error) {
			calls++
			if calls%2 == 1 {
				return 0, errFlaky
			}
			return calls, nil
		}

		res, err := poller.Poll(context.Background(), fetch,
			func(v int) bool { return v >= 6 },
			poller.WithClock[int](newStepClock()),
			poller.WithMaxErrors[int](1),
		)

		Convey("Then only consecutive errors count", func() {
			So(err, ShouldBeNil)
			So(res.Value, ShouldEqual, 6)
		})
	})

	Convey("Given errors above the limit", t, func() {
		fetch := func(context.Context) (int, error) { return 0, errFlaky }

		res, err := poller.Poll(context.Background(), fetch,
			func(int) bool { return true },
			poller.WithClock[int](newStepClock()),
			poller.WithMaxErrors[int](2),
		)

		So(errors.Is(err, poller.ErrTooManyErrors), ShouldBeTrue)
		So(errors.Is(err, errFlaky), ShouldBeTrue)
		So(res.Attempts, ShouldEqual, 3)
	})

	Convey("Given a permanent error", t, func() {
		fetch := func(context.Context) (int, error) { return 0, errAuth }

		res, err := poller.Poll(context.Background(), fetch,
			func(int) bool { return true },
			poller.WithClock[int](newStepClock()),
			poller.WithPermanent[int](func(err error) bool { return errors.Is(err, errAuth) }),
		)

		So(errors.Is(err, errAuth), ShouldBeTrue)
		So(errors.Is(err, poller.ErrTooManyErrors), ShouldBeFalse)
		So(res.Attempts, ShouldEqual, 1)
	})
}

func TestPollCancel(t *testing.T) {
	Convey("Given an already canceled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		fetch, n := counter()

		res, err := poller.Poll(ctx, fetch, func(int) bool { return true },
			poller.WithClock[int](newStepClock()))

		So(errors.Is(err, poller.ErrCanceled), ShouldBeTrue)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
		So(res.Attempts, ShouldEqual, 0)
		So(*n, ShouldEqual, 0)
	})

	Convey("Given a context canceled while a fetch is in flight", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		calls := 0
		fetch := func(ctx context.Context) (int, error) {
			calls++
			if calls == 2 {
				cancel()
				return 0, ctx.Err()
			}
			return calls, nil
		}

		res, err := poller.Poll(ctx, fetch, func(int) bool { return false },
			poller.WithClock[int](newStepClock()))

		Convey("Then it fails with the last good value", func() {
			So(errors.Is(err, poller.ErrCanceled), ShouldBeTrue)
			So(res.Value, ShouldEqual, 1)
			So(res.TimedOut, ShouldBeFalse)
		})
	})

	Convey("Given a context canceled while waiting on the real clock", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		fetch, _ := counter()

		_, err := poller.Poll(ctx, fetch, func(int) bool { return false },
			poller.WithInterval[int](time.Hour))

		So(errors.Is(err, poller.ErrCanceled), ShouldBeTrue)
		So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
	})
}

func TestPollConfig(t *testing.T) {
	Convey("Given a missing predicate", t, func() {
		fetch, _ := counter()
		_, err := poller.Poll[int](context.Background(), fetch, nil)
		So(errors.Is(err, poller.ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("Given the real clock and a short interval", t, func() {
		fetch, _ := counter()
		res, err := poller.Poll(context.Background(), fetch,
			func(v int) bool { return v == 2 },
			poller.WithInterval[int](5*time.Millisecond),
			poller.WithTimeout[int](time.Second))

		So(err, ShouldBeNil)
		So(res.Value, ShouldEqual, 2)
	})
}
