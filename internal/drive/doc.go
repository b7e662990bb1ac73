// Package drive provides a client for the Google Drive operations used when
// filing attachments.
//
// The client uploads attachment bytes, looks up and creates category folders,
// and re-parents uploaded files into those folders. It is constructed from an
// already authenticated *http.Client, so one client serves exactly one user
// and is never shared between sessions.
//
// Example usage:
//
//	client, err := drive.NewClient(ctx, httpClient)
//	if err != nil {
//	    return err
//	}
//
//	file, err := client.UploadFile(ctx, "invoice.pdf", bytes.NewReader(data), &drive.UploadOptions{
//	    MimeType: "application/pdf",
//	})
//	if err != nil {
//	    return err
//	}
//
//	folder, err := client.CreateFolder(ctx, "Financial", nil)
//	if err != nil {
//	    return err
//	}
//	_, err = client.AddParent(ctx, file.ID, folder.ID)
package drive
