package service

import (
	"context"

	"github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
	"github.com/programisto-labs/edrm-mailer/internal/metrics"
)

const defaultContentType = "application/octet-stream"

// resolveAttachments builds the uniform attachment descriptors for a dispatch
// request. The two strategies are mutually exclusive; the URL list wins when
// both are populated. Every failure is per-entry: a bad attachment is skipped
// with a warning and never aborts the send.
func (s *Service) resolveAttachments(ctx context.Context, req domain.DispatchRequest) []domain.Attachment {
	if len(req.AttachmentURLs) > 0 {
		return s.resolveURLAttachments(req.AttachmentURLs)
	}
	if len(req.AttachmentFileIDs) > 0 {
		return s.resolveFileAttachments(ctx, req.AttachmentFileIDs)
	}
	return nil
}

func (s *Service) resolveURLAttachments(urls []domain.AttachmentURL) []domain.Attachment {
	s.log.Debug().Int("count", len(urls)).Msg("processing attachments from URLs")
	out := make([]domain.Attachment, 0, len(urls))
	for _, a := range urls {
		if a.URL == "" {
			s.log.Warn().Msg("skipping attachment with missing URL")
			metrics.IncAttachmentResolved("url", "skipped")
			continue
		}
		out = append(out, domain.Attachment{
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
		})
		metrics.IncAttachmentResolved("url", "resolved")
	}
	return out
}

func (s *Service) resolveFileAttachments(ctx context.Context, fileIDs []string) []domain.Attachment {
	s.log.Debug().Int("count", len(fileIDs)).Msg("processing attachments from file store")
	out := make([]domain.Attachment, 0, len(fileIDs))
	for _, id := range fileIDs {
		dl, err := s.files.Download(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("file_id", id).Msg("skipping attachment: download failed")
			metrics.IncAttachmentResolved("file", "skipped")
			continue
		}
		contentType := dl.ContentType
		if contentType == "" {
			contentType = defaultContentType
		}
		out = append(out, domain.Attachment{
			Filename:    dl.Filename,
			ContentType: contentType,
			Content:     dl.Content,
		})
		metrics.IncAttachmentResolved("file", "resolved")
	}
	return out
}
