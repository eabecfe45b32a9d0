package ocr

import "sync"

var (
	libraryMu     sync.RWMutex
	libraryEngine Engine
)

// SetLibraryEngine registers the in-process engine. The gosseract package
// calls it from init when the binary is built with the tesseract tag.
func SetLibraryEngine(engine Engine) {
	libraryMu.Lock()
	defer libraryMu.Unlock()
	libraryEngine = engine
}

// LibraryEngine returns the registered in-process engine, or nil when none
// was linked in.
func LibraryEngine() Engine {
	libraryMu.RLock()
	defer libraryMu.RUnlock()
	return libraryEngine
}
