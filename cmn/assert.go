package cmn

import "fmt"

// Assert panics if cond is false. Used sparingly, for invariants that
// indicate a programming error rather than a runtime condition (mirrors
// the teacher's cmn.Assert/AssertMsg convention).
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

func AssertMsg(cond bool, what ...interface{}) {
	if !cond {
		panic(fmt.Sprint(what...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}
