// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/fieldops/fieldaudit/internal/clock"
	"github.com/fieldops/fieldaudit/internal/imaging"
	"github.com/fieldops/fieldaudit/internal/logging"
	"github.com/fieldops/fieldaudit/internal/model"
	"github.com/fieldops/fieldaudit/internal/storage/onedrive"
)

var errNoImageStore = errors.New("image storage is not configured")

// uniqueFilename builds <email>_<kind>_<YYYYmmdd_HHMMSS>_<suffix>.jpg with
// the email's '@' and '.' replaced by '_'.
func (s *Service) uniqueFilename(email, kind string) string {
	sanitized := strings.NewReplacer("@", "_", ".", "_").Replace(email)
	return fmt.Sprintf("%s_%s_%s_%s.jpg", sanitized, kind, s.clockNow().In(clock.IST).Format("20060102_150405"), s.suffix())
}

func failedRef(err error) string {
	return model.UploadFailedPrefix + ": " + err.Error()
}

// upload decodes a base64 image and stores it in the dated folder.
func (s *Service) upload(ctx context.Context, data, name string) (*onedrive.Item, error) {
	raw, err := imaging.DecodeDataURL(data)
	if err != nil {
		return nil, err
	}
	if s.images == nil {
		return nil, errNoImageStore
	}
	folder := clock.MonthFolder(s.clockNow())
	if err := s.images.EnsureFolder(ctx, folder); err != nil {
		logging.Warnf("could not prepare folder %s: %v", folder, err)
	}
	return s.images.Upload(ctx, raw, name, folder)
}

// uploadFileID uploads an audit photo and returns its drive file id, or an
// UPLOAD_FAILED marker. Empty input yields "".
func (s *Service) uploadFileID(ctx context.Context, data, name string) string {
	if data == "" {
		return ""
	}
	it, err := s.upload(ctx, data, name)
	if err != nil {
		logging.Warnf("image upload failed for %s: %v", name, err)
		return failedRef(err)
	}
	return it.ID
}

func usableRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref != "" && ref != "None" && !strings.HasPrefix(ref, model.UploadFailedPrefix)
}

// ImageURL is the proxy link for a stored file id, or "" when the id is
// empty or marks a failed upload.
func ImageURL(baseURL, fileID string) string {
	if !usableRef(fileID) {
		return ""
	}
	return fmt.Sprintf("%s/api/school-audit/image/%s?resize=true", baseURL, url.PathEscape(strings.TrimSpace(fileID)))
}

func imageURLPtr(baseURL string, fileID *string) string {
	if fileID == nil {
		return ""
	}
	return ImageURL(baseURL, *fileID)
}

var (
	rawFileID      = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)
	graphItemID    = regexp.MustCompile(`/items/([A-Za-z0-9_-]+)`)
	downloadAspxID = regexp.MustCompile(`download\.aspx.*sourceid=([A-Za-z0-9_-]+)`)
	onedriveLiveID = regexp.MustCompile(`onedrive\.live\.com.*id=([A-Za-z0-9_-]+)`)
	fileIDPatterns = []*regexp.Regexp{graphItemID, downloadAspxID, onedriveLiveID}
)

// ExtractFileID normalizes a stored image reference. SharePoint sharing
// URLs and plain ids are returned unchanged; Graph, download.aspx and
// onedrive.live.com URLs yield the embedded id. Empty and failed
// references yield "".
func ExtractFileID(ref string) string {
	if ref == "" || strings.HasPrefix(ref, model.UploadFailedPrefix) {
		return ""
	}
	if onedrive.IsSharingURL(ref) || rawFileID.MatchString(ref) {
		return ref
	}
	for _, re := range fileIDPatterns {
		if m := re.FindStringSubmatch(ref); m != nil {
			return m[1]
		}
	}
	logging.Debugf("could not extract a file id from %q", ref)
	return ref
}

// Image fetches a stored photo, downsized to the preview size when resize
// is set. Processing failures fall back to the original bytes.
func (s *Service) Image(ctx context.Context, ref string, resize bool) ([]byte, error) {
	if !usableRef(ref) {
		return nil, badRequest("school_audit.invalid_file_id")
	}
	id := ExtractFileID(strings.TrimSpace(ref))
	if s.images == nil {
		return nil, notFound("school_audit.image_not_found")
	}
	data, err := s.images.Download(ctx, id)
	if err != nil {
		logging.Warnf("image %s not retrievable: %v", id, err)
		return nil, notFound("school_audit.image_not_found")
	}
	if resize {
		data = imaging.Preview(data)
	}
	return data, nil
}

// sessionInput is one session as sent by the app. Image fields carry base64
// payloads under {"base64": ...}.
type sessionInput struct {
	Enabled       bool
	Name          string
	StudentsCount int
	SachetCount   int
	WinnerName    string
	WinnerClass   string
	Images        map[string]string
}

var sessionImageKinds = []struct {
	field, kind string
}{
	{"startSelfie", "start_selfie"},
	{"endSelfie", "end_selfie"},
	{"winnerPhoto", "winner"},
	{"sachetDistributionPhoto", "distribution"},
}

// parseSessions reads the sessions object. Non-object entries are ignored.
func parseSessions(v any) (map[string]sessionInput, error) {
	raw, ok := v.(map[string]any)
	if !ok {
		return map[string]sessionInput{}, nil
	}
	out := make(map[string]sessionInput, len(raw))
	for key, val := range raw {
		m, ok := val.(map[string]any)
		if !ok {
			continue
		}
		p := Payload(m)
		students, err := model.ParseCount(m["studentsCount"])
		if err != nil {
			return nil, badRequest("error.invalid_number", "Field", key+".studentsCount")
		}
		sachets, err := model.ParseCount(m["sachetCount"])
		if err != nil {
			return nil, badRequest("error.invalid_number", "Field", key+".sachetCount")
		}
		in := sessionInput{
			Enabled:       p.Bool("enabled"),
			Name:          p.Str("name"),
			StudentsCount: students,
			SachetCount:   sachets,
			WinnerName:    p.Str("winnerName"),
			WinnerClass:   p.Str("winnerClass"),
			Images:        map[string]string{},
		}
		for _, k := range sessionImageKinds {
			if img, ok := m[k.field].(map[string]any); ok {
				if b64 := asString(img["base64"]); b64 != "" {
					in.Images[k.field] = b64
				}
			}
		}
		out[key] = in
	}
	return out, nil
}

func enabledCount(sessions map[string]sessionInput) int {
	n := 0
	for _, s := range sessions {
		if s.Enabled {
			n++
		}
	}
	return n
}

// processSessions keeps enabled sessions, uploads their photos and returns
// the stored sessions with the total student count.
func (s *Service) processSessions(ctx context.Context, in map[string]sessionInput, email string) (map[string]model.Session, int) {
	out := make(map[string]model.Session, len(in))
	total := 0
	for key, si := range in {
		if !si.Enabled {
			continue
		}
		sess := model.Session{
			Enabled:       true,
			Name:          si.Name,
			StudentsCount: model.Count(si.StudentsCount),
			SachetCount:   model.Count(si.SachetCount),
			WinnerName:    si.WinnerName,
			WinnerClass:   si.WinnerClass,
		}
		for _, k := range sessionImageKinds {
			data, ok := si.Images[k.field]
			if !ok {
				continue
			}
			ref := s.uploadFileID(ctx, data, s.uniqueFilename(email, key+"_"+k.kind))
			switch k.field {
			case "startSelfie":
				sess.StartSelfie = &ref
			case "endSelfie":
				sess.EndSelfie = &ref
			case "winnerPhoto":
				sess.WinnerPhoto = &ref
			case "sachetDistributionPhoto":
				sess.SachetDistributionPhoto = &ref
			}
		}
		total += si.StudentsCount
		out[key] = sess
	}
	return out, total
}

// formatAudit renders an audit for API responses with proxy links for every
// stored photo.
func formatAudit(a *model.SchoolAudit, baseURL string) map[string]any {
	m := toMap(a)
	m["start_image_url"] = ImageURL(baseURL, a.StartImageFileID)
	m["end_image_url"] = ImageURL(baseURL, a.EndImageFileID)
	m["audit_sheet_image_url"] = ImageURL(baseURL, a.AuditSheetImageFileID)
	if sessions, ok := m["sessions"].(map[string]any); ok {
		for key, raw := range sessions {
			sm, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			src := a.Sessions[key]
			sm["startSelfieUrl"] = imageURLPtr(baseURL, src.StartSelfie)
			sm["endSelfieUrl"] = imageURLPtr(baseURL, src.EndSelfie)
			sm["winnerPhotoUrl"] = imageURLPtr(baseURL, src.WinnerPhoto)
			sm["sachetDistributionPhotoUrl"] = imageURLPtr(baseURL, src.SachetDistributionPhoto)
		}
	}
	return m
}

func isoTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
