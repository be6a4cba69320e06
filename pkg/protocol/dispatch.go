package protocol

import (
	"context"
	"fmt"
)

// RequestKind tags an inbound request or notification
type RequestKind int

const (
	RequestLoadProject RequestKind = iota
	RequestListTargets
	RequestSources
	RequestTargetsForFile
	RequestCompileArguments
	NotificationFilesChanged
)

func (k RequestKind) String() string {
	switch k {
	case RequestLoadProject:
		return "loadProject"
	case RequestListTargets:
		return "listTargets"
	case RequestSources:
		return "sources"
	case RequestTargetsForFile:
		return "targetsForFile"
	case RequestCompileArguments:
		return "compileArguments"
	case NotificationFilesChanged:
		return "filesChanged"
	}
	return fmt.Sprintf("requestKind(%d)", int(k))
}

// Request is the tagged union the transport hands to Dispatch. Only the
// fields relevant to the kind are set.
type Request struct {
	Kind    RequestKind
	Target  string
	File    string
	Changes []FileChange
}

// HandlerTable maps each request kind to its handler. Dispatch is a plain
// switch over the tag; there is no reflection and no string lookup.
type HandlerTable struct {
	LoadProject      func(ctx context.Context) error
	ListTargets      func(ctx context.Context) ([]BuildTarget, error)
	Sources          func(ctx context.Context, target string) ([]SourceDescriptor, error)
	TargetsForFile   func(ctx context.Context, uri string) ([]string, error)
	CompileArguments func(ctx context.Context, target, file string) (CompileArguments, error)
	FilesChanged     func(ctx context.Context, changes []FileChange) error
}

// Dispatch routes a request to its handler and returns the response value,
// nil for notifications. An unregistered kind is a transport defect.
func (t *HandlerTable) Dispatch(ctx context.Context, req Request) (interface{}, error) {
	switch req.Kind {
	case RequestLoadProject:
		if t.LoadProject == nil {
			return nil, unregistered(req.Kind)
		}
		return nil, t.LoadProject(ctx)
	case RequestListTargets:
		if t.ListTargets == nil {
			return nil, unregistered(req.Kind)
		}
		return t.ListTargets(ctx)
	case RequestSources:
		if t.Sources == nil {
			return nil, unregistered(req.Kind)
		}
		return t.Sources(ctx, req.Target)
	case RequestTargetsForFile:
		if t.TargetsForFile == nil {
			return nil, unregistered(req.Kind)
		}
		return t.TargetsForFile(ctx, req.File)
	case RequestCompileArguments:
		if t.CompileArguments == nil {
			return nil, unregistered(req.Kind)
		}
		return t.CompileArguments(ctx, req.Target, req.File)
	case NotificationFilesChanged:
		if t.FilesChanged == nil {
			return nil, unregistered(req.Kind)
		}
		return nil, t.FilesChanged(ctx, req.Changes)
	}
	return nil, fmt.Errorf("unknown request kind %v", req.Kind)
}

func unregistered(k RequestKind) error {
	return fmt.Errorf("no handler registered for %v", k)
}
