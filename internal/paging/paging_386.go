//go:build 386

package paging

import "github.com/POBIX/ossi/internal/mach"

func init() {
	enablePagingHardware = func(physBase uint32) {
		mach.LoadCR3(physBase)
		mach.EnablePagingBit()
	}
	invalidateTLB = mach.Invlpg
	loadDirectory = mach.LoadCR3
}
