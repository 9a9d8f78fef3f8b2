package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("GRANITE_TEST_MODE") == "" {
			_ = os.Setenv("GRANITE_TEST_MODE", "1")
		}
	})
}
