//go:build linux || darwin || freebsd || netbsd || openbsd

// memory_unix.go - 可执行内存管理 (Unix)
//
// W^X 流程：先以读写权限 mmap 匿名页，写入机器码后用 mprotect
// 切换为读执行。任何时刻页面都不会同时可写可执行。

package jit

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// execRegion 一段可执行内存
type execRegion struct {
	mem []byte
}

// allocExec 将机器码装入新的可执行区域，返回区域与入口地址
func allocExec(code []byte) (*execRegion, uintptr, error) {
	if len(code) == 0 {
		return nil, 0, &CompileError{Reason: "empty code"}
	}
	pageSize := unix.Getpagesize()
	size := (len(code) + pageSize - 1) &^ (pageSize - 1)

	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, 0, &CompileError{Reason: "mmap failed: " + err.Error()}
	}
	copy(mem, code)

	// 写入完成，切换为只读可执行
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, 0, &CompileError{Reason: "mprotect failed: " + err.Error()}
	}

	return &execRegion{mem: mem}, uintptr(unsafe.Pointer(&mem[0])), nil
}

// release 释放区域
func (r *execRegion) release() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}
