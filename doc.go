// Package uploads moves uploaded files into an object storage bucket and
// removes objects whose references have been replaced or deleted.
//
// Callers hand the client References: either a pointer string issued by an
// earlier upload, or a fresh payload that still has to be stored. Fresh
// payloads are streamed through a pipe into a multipart upload, so a file is
// never held in memory as a whole. A failed upload leaves no partial object
// behind.
//
// Key features:
//   - Timestamped, extension-only or verbatim object naming
//   - Order-preserving bulk uploads with optional concurrency cap
//   - Reconciliation of replaced pointers with awaited deletes
//   - Optional public base rewrite of returned pointers (e.g. a CDN host)
//   - S3, MinIO and in-memory stores behind one interface
//
// Example usage:
//
//	client, err := uploads.New(ctx,
//	    uploads.WithBucket("media"),
//	    uploads.WithRegion("eu-west-1"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	pointers, err := client.UploadMany(ctx, refs,
//	    uploadtypes.Target{Folder: "gallery"},
//	    uploads.WithPrevious(product.Images...),
//	)
//	if err != nil {
//	    return err
//	}
//	product.Images = pointers
package uploads
