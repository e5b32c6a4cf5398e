package preview

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/docshelf/docshelf/pkg/manifest"
)

// rule is one routing entry. Rules are evaluated in order and the first
// match renders the preview.
type rule struct {
	name   string
	match  func(req request) bool
	render func(ctx context.Context, r *Resolver, req request) (State, error)
}

var rules = []rule{
	{
		name:   "unknown",
		match:  func(req request) bool { return req.ext == "" },
		render: renderUnknown,
	},
	{
		name:   "legacy-doc",
		match:  func(req request) bool { return req.ext == "doc" },
		render: renderLegacyDoc,
	},
	{
		name:   "pdf",
		match:  func(req request) bool { return req.ext == "pdf" },
		render: renderFrame,
	},
	{
		name:   "image",
		match:  func(req request) bool { return IsImage(req.ext) },
		render: renderImage,
	},
	{
		name:   "docx",
		match:  func(req request) bool { return req.ext == "docx" },
		render: renderDocx,
	},
	{
		name:   "spreadsheet",
		match:  func(req request) bool { return req.ext == "xls" || req.ext == "xlsx" },
		render: renderSpreadsheet,
	},
	{
		name:   "text",
		match:  func(req request) bool { return IsTextLike(req.ext, req.node) },
		render: renderText,
	},
	{
		name:   "markup",
		match:  func(req request) bool { return IsMarkup(req.ext) },
		render: renderFrame,
	},
}

var fallbackRule = rule{
	name:   "viewer",
	match:  func(request) bool { return true },
	render: renderFallback,
}

func renderUnknown(_ context.Context, _ *Resolver, req request) (State, error) {
	return Message(MsgUnknownType, req.downloadURL, nil), nil
}

func renderLegacyDoc(_ context.Context, _ *Resolver, req request) (State, error) {
	var extra *Link
	if req.node.ConvertedPath != "" {
		extra = &Link{
			Label: MsgConvertedLink,
			URL:   manifest.ResolveAssetPath(req.node.ConvertedPath),
		}
	}
	return Message(MsgLegacyDoc, req.downloadURL, extra), nil
}

func renderFrame(_ context.Context, _ *Resolver, req request) (State, error) {
	return Iframe(req.downloadURL), nil
}

func renderImage(ctx context.Context, r *Resolver, req request) (State, error) {
	data, err := r.fetchAsset(ctx, req)
	if err != nil {
		return State{}, err
	}

	mimeType := req.node.Mime
	if mimeType == "" || mimeType == manifest.DefaultMIME {
		mimeType = ImageMIME(manifest.ExtensionOf(req.downloadURL))
	}
	if mimeType == "" {
		mimeType = manifest.DefaultMIME
	}

	info := InspectImage(data)
	orientation := 1
	if info != nil {
		orientation = info.Orientation
	}

	obj := r.objects.Create(data, mimeType, orientation)
	state := State{
		Kind:        KindImage,
		URL:         ObjectURL(obj.ID),
		Alt:         req.node.Name,
		DownloadURL: req.downloadURL,
		Image:       info,
		ObjectID:    obj.ID,
	}
	if info != nil {
		state.ThumbURL = state.URL + "?thumb=1"
	}
	return state, nil
}

func renderDocx(ctx context.Context, r *Resolver, req request) (State, error) {
	data, err := r.fetchAsset(ctx, req)
	if err == nil {
		var out string
		out, err = DocxToHTML(data)
		if err == nil {
			return HTML(out), nil
		}
	}

	r.log.Debug("docx conversion failed, trying office viewer",
		zap.String("path", req.node.Path), zap.Error(err))
	if abs := r.absolute(req.downloadURL); abs != "" {
		state := Viewer(OfficeViewerURL(abs), NoteDocxFallback)
		state.DownloadURL = req.downloadURL
		return state, nil
	}
	return State{}, err
}

func renderSpreadsheet(ctx context.Context, r *Resolver, req request) (State, error) {
	data, err := r.fetchAsset(ctx, req)
	if err != nil {
		return State{}, err
	}

	rows, err := ReadFirstSheet(data, req.ext)
	if errors.Is(err, ErrNoSheets) {
		return Message(MsgNoSheets, req.downloadURL, nil), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read spreadsheet: %w", err)
	}
	return HTML(TableHTML(rows)), nil
}

func renderText(ctx context.Context, r *Resolver, req request) (State, error) {
	data, err := r.fetchAsset(ctx, req)
	if err != nil {
		return State{}, err
	}

	text := DecodeText(data)
	if req.ext == "json" {
		if pretty, ok := PrettyJSON(text); ok {
			text = pretty
		}
	}
	if text == "" {
		text = MsgEmptyFile
	}
	return Text(text), nil
}

func renderFallback(_ context.Context, r *Resolver, req request) (State, error) {
	if abs := r.absolute(req.downloadURL); abs != "" {
		state := Viewer(OfficeViewerURL(abs), NoteViewer)
		state.DownloadURL = req.downloadURL
		return state, nil
	}
	return Message(MsgUnsupported, req.downloadURL, nil), nil
}
