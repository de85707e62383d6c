package dataunit

import "fmt"

// Date is a calendar date with no time-of-day component, encoded on the
// wire as a packed int32 (year*10000 + month*100 + day).
type Date struct {
	Year, Month, Day int
}

func (d Date) packed() int32 {
	return int32(d.Year*10000 + d.Month*100 + d.Day)
}

func dateFromPacked(v int32) Date {
	return Date{Year: int(v / 10000), Month: int((v / 100) % 100), Day: int(v % 100)}
}

func (d Date) String() string { return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day) }

// Time is a time-of-day with second resolution, encoded as seconds since
// midnight.
type Time struct {
	Hour, Minute, Second int
}

func (t Time) packed() int32 {
	return int32(t.Hour*3600 + t.Minute*60 + t.Second)
}

func timeFromPacked(v int32) Time {
	return Time{Hour: int(v / 3600), Minute: int((v / 60) % 60), Second: int(v % 60)}
}

func (t Time) String() string { return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second) }

// DateTime is a combined date and time, encoded as unix seconds (UTC).
type DateTime struct {
	Unix int64
}

// DateRange is an inclusive [Begin, End] pair of Dates, used both as a
// field value and as the interval operand shape in query predicates
//.
type DateRange struct {
	Begin, End Date
}

func (r DateRange) String() string { return r.Begin.String() + ".." + r.End.String() }
