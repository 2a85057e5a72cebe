package order

import (
	"fmt"
	"time"
)

// NewOrderNumber formats ORD-<YYYYMMDD>-<last six digits of the Unix
// millisecond clock>. Two orders in the same millisecond collide; the
// store's uniqueness check turns that into a conflict.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%06d", now.Format("20060102"), now.UnixMilli()%1_000_000)
}
